package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const publishedFileDetailsURL = "https://api.steampowered.com/ISteamRemoteStorage/GetPublishedFileDetails/v1/"

// WorkshopClient queries the Steam Workshop web API for published-file
// metadata. Only the fields the mod checker needs are decoded.
type WorkshopClient struct {
	log     *zap.Logger
	baseURL string
	client  *http.Client
}

// NewWorkshopClient builds a client against the public Steam API.
func NewWorkshopClient(log *zap.Logger) *WorkshopClient {
	return &WorkshopClient{
		log:     log.Named("workshop"),
		baseURL: publishedFileDetailsURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type publishedFileDetailsResponse struct {
	Response struct {
		Result               int `json:"result"`
		ResultCount          int `json:"resultcount"`
		PublishedFileDetails []struct {
			PublishedFileID string `json:"publishedfileid"`
			Result          int    `json:"result"`
			TimeUpdated     int64  `json:"time_updated"`
		} `json:"publishedfiledetails"`
	} `json:"response"`
}

// PublishedFileUpdateTimes returns the last-updated unix time for each
// requested workshop item. Items Steam does not know about are omitted from
// the result rather than erroring the whole batch.
func (c *WorkshopClient) PublishedFileUpdateTimes(ctx context.Context, workshopIDs []string) (map[string]int64, error) {
	if len(workshopIDs) == 0 {
		return map[string]int64{}, nil
	}

	form := url.Values{}
	form.Set("itemcount", strconv.Itoa(len(workshopIDs)))
	for i, id := range workshopIDs {
		form.Set(fmt.Sprintf("publishedfileids[%d]", i), id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("workshop details request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workshop details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workshop details: unexpected status %d", resp.StatusCode)
	}

	var details publishedFileDetailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("workshop details: decode: %w", err)
	}

	times := make(map[string]int64, len(details.Response.PublishedFileDetails))
	for _, d := range details.Response.PublishedFileDetails {
		if d.Result != 1 {
			c.log.Warn("workshop item not found", zap.String("workshop_id", d.PublishedFileID))
			continue
		}
		times[d.PublishedFileID] = d.TimeUpdated
	}
	return times, nil
}
