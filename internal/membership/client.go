// Package membership verifies society membership against the students'
// union membership API.
package membership

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the students' union API root.
const DefaultBaseURL = "https://www.warwicksu.com"

// memberList is the body of the listMembers endpoint.
type memberList struct {
	XMLName xml.Name `xml:"MembershipAPI"`
	Members []struct {
		UniqueID  string `xml:"UniqueID"`
		FirstName string `xml:"FirstName"`
		LastName  string `xml:"LastName"`
	} `xml:"Member"`
}

// Client looks members up with one API key per society.  Results are not
// cached: a member who joins mid-term is recognised on their next signup.
type Client struct {
	BaseURL string
	Keys    map[string]string // society code -> API key
	HTTP    *http.Client
}

func NewClient(baseURL string, keys map[string]string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Keys:    keys,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// IsMember reports whether uniID appears on the society's member list.
// A society without a configured key is an error so the caller falls
// back to non-member pricing.
func (c *Client) IsMember(ctx context.Context, society, uniID string) (bool, error) {
	key, ok := c.Keys[society]
	if !ok || key == "" {
		return false, fmt.Errorf("membership: no api key for society %q", society)
	}
	u := fmt.Sprintf("%s/membershipapi/listMembers/%s/", c.BaseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("membership: %s: %w", society, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("membership: %s: unexpected status %d", society, resp.StatusCode)
	}

	var list memberList
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&list); err != nil {
		return false, fmt.Errorf("membership: %s: decode: %w", society, err)
	}
	want := strings.TrimSpace(uniID)
	for _, m := range list.Members {
		if strings.TrimSpace(m.UniqueID) == want {
			return true, nil
		}
	}
	return false, nil
}
