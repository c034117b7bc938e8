package main

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const sheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// --- Service Account ---

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

func loadServiceAccount(path string) (*serviceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account file missing client_email or private_key")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return &sa, nil
}

// --- Sheets Store ---

// SheetsStore implements RowStore against the Google Sheets v4 values API.
// Each table is a tab in one spreadsheet; row 1 of a tab is its header.
type SheetsStore struct {
	spreadsheetID string
	account       *serviceAccount
	key           *rsa.PrivateKey
	client        *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func newSheetsStore(spreadsheetID, credentialsFile string) (*SheetsStore, error) {
	sa, err := loadServiceAccount(credentialsFile)
	if err != nil {
		return nil, err
	}
	key, err := parsePrivateKey(sa.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &SheetsStore{
		spreadsheetID: spreadsheetID,
		account:       sa,
		key:           key,
		client:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func parsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("private_key is not PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Older keys use PKCS1.
		if k, err1 := x509.ParsePKCS1PrivateKey(block.Bytes); err1 == nil {
			return k, nil
		}
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

// --- Token ---

// accessToken returns a cached access token, minting one via the signed-JWT
// grant when the cache is empty or about to expire.
func (s *SheetsStore) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExp.Add(-60*time.Second)) {
		return s.token, nil
	}

	assertion, err := s.signJWT()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, "POST", s.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("token exchange error %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}

	s.token = tok.AccessToken
	s.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return s.token, nil
}

// signJWT builds the RS256 service-account assertion for the token grant.
func (s *SheetsStore) signJWT() (string, error) {
	now := time.Now()
	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]any{
		"iss":   s.account.ClientEmail,
		"scope": "https://www.googleapis.com/auth/spreadsheets",
		"aud":   s.account.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	hb, _ := json.Marshal(header)
	cb, _ := json.Marshal(claims)
	signing := base64.RawURLEncoding.EncodeToString(hb) + "." + base64.RawURLEncoding.EncodeToString(cb)

	digest := sha256.Sum256([]byte(signing))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signing + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// --- Values API ---

// request performs an authorized Sheets API call and decodes the JSON body.
func (s *SheetsStore) request(ctx context.Context, method, reqURL string, payload any) (map[string]any, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("sheets API error %d: %s", resp.StatusCode, truncate(string(body), 500))
	}

	var result map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
	}
	return result, nil
}

// getValues fetches all rows of a tab as strings.
func (s *SheetsStore) getValues(ctx context.Context, table string) ([][]string, error) {
	reqURL := fmt.Sprintf("%s/%s/values/%s", sheetsBaseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(table))
	result, err := s.request(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}

	raw, _ := result["values"].([]any)
	rows := make([][]string, 0, len(raw))
	for _, r := range raw {
		cells, _ := r.([]any)
		row := make([]string, 0, len(cells))
		for _, c := range cells {
			row = append(row, fmt.Sprintf("%v", c))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *SheetsStore) AppendRow(ctx context.Context, table string, row []string) error {
	vals := make([]any, len(row))
	for i, v := range row {
		vals[i] = v
	}
	reqURL := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		sheetsBaseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(table))
	_, err := s.request(ctx, "POST", reqURL, map[string]any{"values": []any{vals}})
	return err
}

func (s *SheetsStore) Header(ctx context.Context, table string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/%s/values/%s", sheetsBaseURL,
		url.PathEscape(s.spreadsheetID), url.PathEscape(table+"!1:1"))
	result, err := s.request(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	raw, _ := result["values"].([]any)
	if len(raw) == 0 {
		return nil, nil
	}
	cells, _ := raw[0].([]any)
	header := make([]string, 0, len(cells))
	for _, c := range cells {
		header = append(header, fmt.Sprintf("%v", c))
	}
	return header, nil
}

func (s *SheetsStore) Records(ctx context.Context, table string) ([]map[string]string, error) {
	rows, err := s.getValues(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *SheetsStore) UpdateCell(ctx context.Context, table string, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("cell out of range: row %d col %d", row, col)
	}
	rangeRef := fmt.Sprintf("%s!%s", table, a1Cell(row, col))
	reqURL := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW",
		sheetsBaseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(rangeRef))
	_, err := s.request(ctx, "PUT", reqURL, map[string]any{"values": []any{[]any{value}}})
	return err
}

func (s *SheetsStore) EnsureColumn(ctx context.Context, table, name string) (int, error) {
	header, err := s.Header(ctx, table)
	if err != nil {
		return 0, err
	}
	if idx := colIndex(header, name); idx > 0 {
		return idx, nil
	}
	idx := len(header) + 1
	if err := s.UpdateCell(ctx, table, 1, idx, name); err != nil {
		return 0, err
	}
	return idx, nil
}

// Init writes the fixed header row into any tab that is still empty.
func (s *SheetsStore) Init(ctx context.Context) error {
	for table, header := range tableHeaders {
		existing, err := s.Header(ctx, table)
		if err != nil {
			return fmt.Errorf("check %s header: %w", table, err)
		}
		if len(existing) > 0 {
			continue
		}
		row := make([]any, len(header))
		for i, h := range header {
			row[i] = h
		}
		rangeRef := fmt.Sprintf("%s!A1", table)
		reqURL := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW",
			sheetsBaseURL, url.PathEscape(s.spreadsheetID), url.PathEscape(rangeRef))
		if _, err := s.request(ctx, "PUT", reqURL, map[string]any{"values": []any{row}}); err != nil {
			return fmt.Errorf("write %s header: %w", table, err)
		}
		logInfo("initialized sheet tab", "table", table)
	}
	return nil
}

// a1Cell converts 1-based (row, col) to A1 notation, e.g. (2, 28) → "AB2".
func a1Cell(row, col int) string {
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return fmt.Sprintf("%s%d", letters, row)
}
