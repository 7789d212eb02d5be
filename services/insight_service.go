package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// InsightStats is the snapshot the text service turns into
// human-readable copy.
type InsightStats struct {
	CurrentStreak  int     `json:"current_streak"`
	LongestStreak  int     `json:"longest_streak"`
	TotalCheckIns  int     `json:"total_check_ins"`
	MissedDays     int     `json:"missed_days"`
	CompletionRate float64 `json:"completion_rate"`
	ChallengeName  string  `json:"challenge_name"`
}

// InsightService calls an external text-generation service to enrich
// notification copy. The engine must keep working without it, so every
// caller falls back to built-in copy on error.
type InsightService struct {
	baseURL string
	client  *http.Client
}

func NewInsightService(baseURL string) *InsightService {
	return &InsightService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

// Describe returns generated copy for the stats, or an error when the
// service is disabled or unreachable.
func (s *InsightService) Describe(ctx context.Context, stats InsightStats) (string, error) {
	if s.baseURL == "" {
		return "", fmt.Errorf("insight service not configured")
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("failed to encode stats: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/describe", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("insight service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("insight service returned status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode insight response: %w", err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("insight service returned empty text")
	}
	return out.Text, nil
}
