// Command notify-tail follows a user's group-buy notifications: it logs in
// (or uses a given token), prints the unread backlog, then streams pushes
// over the websocket and reconnects when the server goes away.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/yeremiapane/groupbuy-app/models"
	"github.com/yeremiapane/groupbuy-app/protocol"
	"github.com/yeremiapane/groupbuy-app/utils"
	"github.com/yeremiapane/groupbuy-app/wsclient"
)

var (
	serverURL   string
	token       string
	email       string
	password    string
	maxAttempts int
	maxBackoff  time.Duration
	jsonLogs    bool

	rootCmd = &cobra.Command{
		Use:   "notify-tail",
		Short: "Stream group-buy notifications for one user",
		RunE:  runTail,
	}
	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Print a session token for --email/--password",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := login(cmd.Context(), serverURL, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "API base URL")
	rootCmd.PersistentFlags().StringVar(&email, "email", "", "Login email (used when --token is empty)")
	rootCmd.PersistentFlags().StringVar(&password, "password", os.Getenv("GROUPBUY_PASSWORD"), "Login password")
	rootCmd.Flags().StringVarP(&token, "token", "t", os.Getenv("GROUPBUY_TOKEN"), "Session token")
	rootCmd.Flags().IntVar(&maxAttempts, "max-attempts", 10, "Reconnect attempts before giving up (0 = unlimited)")
	rootCmd.Flags().DurationVar(&maxBackoff, "max-backoff", 30*time.Second, "Upper bound for the reconnect delay")
	rootCmd.Flags().BoolVar(&jsonLogs, "json", false, "Log as JSON")
	rootCmd.AddCommand(loginCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runTail(cmd *cobra.Command, args []string) error {
	format := "text"
	if jsonLogs {
		format = "json"
	}
	utils.InitLogger("info", format)
	ctx := cmd.Context()

	if token == "" {
		tok, err := login(ctx, serverURL, email, password)
		if err != nil {
			return err
		}
		token = tok
	}

	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return err
	}

	api := &apiClient{base: strings.TrimRight(serverURL, "/"), token: token, http: &http.Client{Timeout: 10 * time.Second}}
	client := wsclient.New(ctx, wsURL, token,
		wsclient.WithMaxAttempts(maxAttempts),
		wsclient.WithBackoff(time.Second, maxBackoff),
		wsclient.WithOnConnect(func() {
			backlog, err := api.unread(ctx)
			if err != nil {
				utils.ErrorLogger.WithError(err).Error("fetching notification backlog failed")
				return
			}
			for i := range backlog {
				logNotification(&backlog[i], "backlog")
			}
		}),
	)
	client.On(protocol.TypeAuthSuccess, func(data json.RawMessage) {
		var ok protocol.AuthSuccessData
		if err := json.Unmarshal(data, &ok); err == nil {
			utils.InfoLogger.WithFields(logrus.Fields{"user_id": ok.UserID, "role": ok.Role}).Info("authenticated")
		}
	})
	client.On(protocol.TypeNotification, func(data json.RawMessage) {
		var n models.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			utils.ErrorLogger.WithError(err).Error("malformed notification")
			return
		}
		logNotification(&n, "push")
	})
	client.On(protocol.TypeError, func(data json.RawMessage) {
		var e protocol.ErrorData
		_ = json.Unmarshal(data, &e)
		utils.ErrorLogger.WithField("message", e.Message).Error("server rejected the connection")
	})

	client.Connect()
	<-ctx.Done()
	client.Disconnect()
	return nil
}

func logNotification(n *models.Notification, source string) {
	utils.InfoLogger.WithFields(logrus.Fields{
		"source": source,
		"id":     n.ID,
		"type":   n.Type,
		"read":   n.IsRead,
	}).Infof("%s: %s", n.Title, n.Message)
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid --server: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func login(ctx context.Context, base, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", errors.New("either --token or --email and --password are required")
	}
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Token string `json:"token"`
	}
	if err := doJSON(http.DefaultClient, req, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return out.Token, nil
}

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (a *apiClient) unread(ctx context.Context) ([]models.Notification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/notifications?unread=true&limit=100", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	var out struct {
		Items []models.Notification `json:"items"`
	}
	if err := doJSON(a.http, req, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func doJSON(c *http.Client, req *http.Request, v interface{}) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: %w", resp.Status, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%s: %s", resp.Status, env.Message)
	}
	return json.Unmarshal(env.Data, v)
}
