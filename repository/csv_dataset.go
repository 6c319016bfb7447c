package repository

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/shopspring/decimal"
)

// CSVHeader is the column order of the per-site dataset files
var CSVHeader = []string{
	"site", "item", "price", "currency", "meta", "region", "device", "ts",
	"strategy", "url", "raw_text", "logged_in", "cart_populated", "cookies_cleared", "run_id",
}

const datasetSuffix = "_prices.csv"

// CSVDataset keeps one append-only CSV file per site under Dir
type CSVDataset struct {
	Dir   string
	mutex sync.Mutex
}

func NewCSVDataset(dir string) *CSVDataset {
	return &CSVDataset{Dir: dir}
}

// Path returns the dataset file of a site
func (d *CSVDataset) Path(site string) string {
	return filepath.Join(d.Dir, site+datasetSuffix)
}

// AppendObservations appends rows to each site's file, creating it with a header when absent.
// A file written with another column layout is merged and rewritten in the current layout.
func (d *CSVDataset) AppendObservations(ctx context.Context, obs []*models.Observation) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	bySite := make(map[string][]*models.Observation)
	var sites []string
	for _, o := range obs {
		if err := o.Validate(); err != nil {
			return err
		}
		if _, ok := bySite[o.Site]; !ok {
			sites = append(sites, o.Site)
		}
		bySite[o.Site] = append(bySite[o.Site], o)
	}

	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.appendSite(site, bySite[site]); err != nil {
			return fmt.Errorf("failed to append %s dataset: %w", site, err)
		}
	}
	return nil
}

func (d *CSVDataset) appendSite(site string, obs []*models.Observation) error {
	path := d.Path(site)

	header, err := readHeader(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return writeRows(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, true, obs)
	case err != nil:
		return err
	case slices.Equal(header, CSVHeader):
		return writeRows(path, os.O_APPEND|os.O_WRONLY, false, obs)
	}

	prior, err := d.load(path)
	if err != nil {
		return err
	}
	return writeRows(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, true, append(prior, obs...))
}

// Load reads every row of a site's dataset. A missing file yields no rows.
func (d *CSVDataset) Load(site string) ([]*models.Observation, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	obs, err := d.load(d.Path(site))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return obs, err
}

// ListObservations filters the rows of one site, or every site when none is given, newest first
func (d *CSVDataset) ListObservations(ctx context.Context, f ObservationFilter) ([]*models.Observation, error) {
	sites := []string{f.Site}
	if f.Site == "" {
		paths, err := filepath.Glob(filepath.Join(d.Dir, "*"+datasetSuffix))
		if err != nil {
			return nil, err
		}
		sites = sites[:0]
		for _, p := range paths {
			sites = append(sites, strings.TrimSuffix(filepath.Base(p), datasetSuffix))
		}
	}

	var out []*models.Observation
	for _, site := range sites {
		rows, err := d.Load(site)
		if err != nil {
			return nil, err
		}
		for _, o := range rows {
			if f.matches(o) {
				out = append(out, o)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

func (d *CSVDataset) load(path string) ([]*models.Observation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	var out []*models.Observation
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		o, err := fromRecord(record, col)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// zone-less layouts written by older collectors, read as local time
var naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func parseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, nerr := time.ParseInLocation(layout, raw, time.Local); nerr == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q: %w", raw, err)
}

func readHeader(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err == io.EOF {
		return nil, nil
	}
	return header, err
}

func writeRows(path string, flag int, withHeader bool, obs []*models.Observation) error {
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if withHeader {
		if err := w.Write(CSVHeader); err != nil {
			return err
		}
	}
	for _, o := range obs {
		if err := w.Write(toRecord(o)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Close()
}

func toRecord(o *models.Observation) []string {
	return []string{
		o.Site,
		o.Item,
		o.PriceString(),
		string(o.Currency),
		o.MetaJSON(),
		string(o.Region),
		string(o.Device),
		o.CollectedAt.UTC().Format(time.RFC3339),
		string(o.Strategy),
		o.URL,
		o.RawText,
		strconv.FormatBool(o.LoggedIn),
		strconv.FormatBool(o.CartPopulated),
		strconv.FormatBool(o.CookiesCleared),
		o.RunID,
	}
}

func fromRecord(record []string, col map[string]int) (*models.Observation, error) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}
	flag := func(name string) bool {
		b, _ := strconv.ParseBool(get(name))
		return b
	}

	o := &models.Observation{
		RunID:          get("run_id"),
		Site:           get("site"),
		Item:           get("item"),
		Region:         models.Region(get("region")),
		Device:         models.Device(get("device")),
		LoggedIn:       flag("logged_in"),
		CartPopulated:  flag("cart_populated"),
		CookiesCleared: flag("cookies_cleared"),
		Currency:       models.ParseCurrency(get("currency")),
		RawText:        get("raw_text"),
		Strategy:       models.Strategy(get("strategy")),
		URL:            get("url"),
	}

	if raw := get("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", raw, err)
		}
		o.Price = decimal.NullDecimal{Decimal: price, Valid: true}
	}
	if raw := get("ts"); raw != "" {
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		o.CollectedAt = ts
	}
	if raw := get("meta"); raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &o.Meta); err != nil {
			return nil, fmt.Errorf("bad meta: %w", err)
		}
	}
	// older files keep the page URL and raw text inside meta
	if v, ok := o.Meta["url"].(string); ok && o.URL == "" {
		o.URL = v
	}
	if v, ok := o.Meta["raw_price_text"].(string); ok && o.RawText == "" {
		o.RawText = v
	}
	return o, nil
}
