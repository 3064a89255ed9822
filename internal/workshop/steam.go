package workshop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const publishedFileURL = "https://api.steampowered.com/ISteamRemoteStorage/GetPublishedFileDetails/v1/"

// SteamClient resolves workshop map ids through the Steam published-file
// API.
type SteamClient struct {
	http *http.Client
	url  string
}

func NewSteamClient(c *http.Client) *SteamClient {
	if c == nil {
		c = &http.Client{Timeout: 10 * time.Second}
	}
	return &SteamClient{http: c, url: publishedFileURL}
}

type publishedFileResponse struct {
	Response struct {
		PublishedFileDetails []struct {
			PublishedFileID string `json:"publishedfileid"`
			Result          int    `json:"result"`
			Title           string `json:"title"`
			Filename        string `json:"filename"`
			Creator         string `json:"creator"`
		} `json:"publishedfiledetails"`
	} `json:"response"`
}

func (s *SteamClient) Get(ctx context.Context, id string) (*MapInfo, error) {
	form := url.Values{
		"itemcount":           {"1"},
		"publishedfileids[0]": {id},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("workshop get %s: %w", id, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workshop get %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workshop get %s: unexpected status %d", id, resp.StatusCode)
	}

	var body publishedFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("workshop get %s: %w", id, err)
	}
	details := body.Response.PublishedFileDetails
	// Result 1 is k_EResultOK; anything else means the file is hidden,
	// removed or never existed.
	if len(details) == 0 || details[0].Result != 1 {
		return nil, fmt.Errorf("workshop get %s: %w", id, ErrUnknownMap)
	}

	d := details[0]
	return &MapInfo{
		ID:     d.PublishedFileID,
		Title:  d.Title,
		Author: d.Creator,
		File:   workshopFile(d.PublishedFileID, d.Filename),
	}, nil
}

// workshopFile builds the path the game client uses to locate the map on
// disk, relative to its maps directory.
func workshopFile(id, filename string) string {
	base := strings.TrimSuffix(path.Base(filename), ".bsp")
	return "workshop/" + id + "/" + base
}
