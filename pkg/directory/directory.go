// Package directory reads users and reservations from the realtime
// directory (a Firebase Realtime Database) and writes recognition logs
// back to it over the REST API.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teslashibe/go-elevatr/internal/httpc"
	"github.com/teslashibe/go-elevatr/pkg/recognition"
)

// ErrNotFound is returned when a user or reservation does not exist.
var ErrNotFound = errors.New("directory: not found")

// Scopes required for REST access with a service account.
var Scopes = []string{
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

// User is one entry of the /users collection.
type User struct {
	UserID      string `json:"userId"`
	ExternalUID string `json:"firebaseUID"`
	Designation string `json:"designation,omitempty"`
	Name        string `json:"name,omitempty"`
	UserName    string `json:"userName,omitempty"`
	FullName    string `json:"fullName,omitempty"`
}

// UnmarshalJSON accepts a numeric userId.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		UserID json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if len(aux.UserID) == 0 || string(aux.UserID) == "null" {
		u.UserID = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.UserID, &s); err == nil {
		u.UserID = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(aux.UserID, &n); err != nil {
		return fmt.Errorf("user: userId: %w", err)
	}
	u.UserID = n.String()
	return nil
}

// DisplayName returns the first non-empty of name, userName and fullName.
func (u User) DisplayName() string {
	for _, n := range []string{u.Name, u.UserName, u.FullName} {
		if n != "" {
			return n
		}
	}
	return "Unknown"
}

// DesignationOrDefault returns the designation, or "Unknown" when unset.
func (u User) DesignationOrDefault() string {
	if u.Designation == "" {
		return "Unknown"
	}
	return u.Designation
}

// Config configures the directory client.
type Config struct {
	// BaseURL is the database root, e.g. https://<db>.firebaseio.com
	BaseURL string

	// CredentialsFile is a service account JSON key. Empty means
	// unauthenticated requests (emulator or open rules).
	CredentialsFile string

	Timeout time.Duration
	Logger  *slog.Logger
}

// Client talks to the directory over REST.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a directory client, authenticating with the service
// account in cfg.CredentialsFile when set.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("directory: base URL required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = httpc.DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := httpc.NewClient(cfg.Timeout)
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		authCtx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(authCtx, creds.TokenSource)
		client.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    client,
		logger:  cfg.Logger.With("component", "directory"),
	}, nil
}

// Users returns the whole /users collection keyed by record ID.
func (c *Client) Users(ctx context.Context) (map[string]User, error) {
	var users map[string]User
	if err := httpc.DoJSON(ctx, c.http, http.MethodGet, c.url("users"), nil, &users); err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	return users, nil
}

// FindUser returns the user whose userId equals userID.
func (c *Client) FindUser(ctx context.Context, userID string) (*User, error) {
	users, err := c.Users(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range sortedKeys(users) {
		if u := users[key]; u.UserID == userID {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
}

// Reservations returns the reservations stored under an external UID.
func (c *Client) Reservations(ctx context.Context, externalUID string) (map[string]recognition.Reservation, error) {
	var res map[string]recognition.Reservation
	if err := httpc.DoJSON(ctx, c.http, http.MethodGet, c.url("reservations", externalUID), nil, &res); err != nil {
		return nil, fmt.Errorf("fetch reservations: %w", err)
	}
	return res, nil
}

// FirstReservation returns the reservation with the lowest key. Push keys
// sort chronologically, so this is the oldest open request.
func (c *Client) FirstReservation(ctx context.Context, externalUID string) (*recognition.Reservation, error) {
	res, err := c.Reservations(ctx, externalUID)
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(res)
	if len(keys) == 0 {
		return nil, fmt.Errorf("reservation for %s: %w", externalUID, ErrNotFound)
	}
	r := res[keys[0]]
	return &r, nil
}

// Record writes a recognition under its log key.
func (c *Client) Record(ctx context.Context, entry recognition.LogEntry) error {
	segments := strings.Split(strings.Trim(entry.Key, "/"), "/")
	if err := httpc.DoJSON(ctx, c.http, http.MethodPut, c.url(segments...), entry.Recognition, nil); err != nil {
		return fmt.Errorf("write %s: %w", entry.Key, err)
	}
	c.logger.Info("recognition logged", "key", entry.Key)
	return nil
}

func (c *Client) url(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/") + ".json"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
