package cadhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/orbitguard/orbitguard/internal/ingest/cadfeed"
	"github.com/orbitguard/orbitguard/internal/timeutil"
	"github.com/pkg/errors"
)

// Client fetches close-approach records from the JPL SBDB CAD API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://ssd-api.jpl.nasa.gov/cad.api"
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// cadResp is the CAD API's column-table response: a list of field names
// plus rows of string values.
type cadResp struct {
	Count  json.Number `json:"count"`
	Fields []string    `json:"fields"`
	Data   [][]string  `json:"data"`
}

func (c *Client) FetchCloseApproaches(ctx context.Context, q cadfeed.Query) ([]cadfeed.Record, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}

	if q.DistMaxAU == "" {
		q.DistMaxAU = "0.05"
	}
	if q.DateMin == "" {
		q.DateMin = "now"
	}
	if q.DateMax == "" {
		q.DateMax = "+60"
	}

	qs := u.Query()
	qs.Set("dist-max", q.DistMaxAU)
	qs.Set("date-min", q.DateMin)
	qs.Set("date-max", q.DateMax)
	qs.Set("body", "Earth")
	qs.Set("sort", "date")
	qs.Set("fullname", "true")
	u.RawQuery = qs.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("cad api http %d", resp.StatusCode)
	}

	var r cadResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	// count == 0 responses omit fields/data entirely.
	if len(r.Fields) == 0 || len(r.Data) == 0 {
		return nil, nil
	}

	col := map[string]int{}
	for i, f := range r.Fields {
		col[f] = i
	}
	for _, f := range []string{"des", "cd", "dist", "v_rel"} {
		if _, ok := col[f]; !ok {
			return nil, fmt.Errorf("cad api response missing field %q", f)
		}
	}

	out := make([]cadfeed.Record, 0, len(r.Data))
	for _, row := range r.Data {
		rec, err := rowToRecord(row, col)
		if err != nil {
			// Malformed rows are skipped, not fatal: the feed occasionally
			// carries blank dist/v_rel values.
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func rowToRecord(row []string, col map[string]int) (cadfeed.Record, error) {
	get := func(f string) string {
		i, ok := col[f]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	des := get("des")
	cd := get("cd")
	if des == "" || cd == "" {
		return cadfeed.Record{}, errors.New("missing des/cd")
	}

	ts, err := timeutil.ParseCADTime(cd)
	if err != nil {
		return cadfeed.Record{}, err
	}

	distAU, err := strconv.ParseFloat(get("dist"), 64)
	if err != nil {
		return cadfeed.Record{}, errors.Wrap(err, "parse dist")
	}
	vRel, err := strconv.ParseFloat(get("v_rel"), 64)
	if err != nil {
		return cadfeed.Record{}, errors.Wrap(err, "parse v_rel")
	}

	rec := cadfeed.Record{
		ObjectID:       des,
		ApproachTS:     ts,
		MissDistanceKM: distAU * cadfeed.AUToKM,
		VRelKMS:        vRel,
	}
	if full := get("fullname"); full != "" {
		rec.Name = &full
	}
	return rec, nil
}
