package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pagedrop/pagedrop/internal/model"
	"github.com/pagedrop/pagedrop/internal/repository"
)

type output struct {
	SiteID    string `json:"site_id"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Analytics bool   `json:"analytics_enabled"`
	HitURL    string `json:"hit_url"`
}

func main() {
	var (
		databaseURL  = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		baseURL      = flag.String("base-url", envOr("BASE_URL", "http://localhost:8080"), "Public base URL of the hit endpoint")
		siteID       = flag.String("id", "", "Site ID (default: generated ULID)")
		name         = flag.String("name", "Demo site", "Site name")
		domain       = flag.String("domain", "demo.pagedrop.local", "Site domain")
		disabled     = flag.Bool("analytics-disabled", false, "Create the site with analytics turned off")
		excludeAdmin = flag.Bool("exclude-admin", false, "Ignore admin preview hits")
		format       = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	id := strings.TrimSpace(*siteID)
	if id == "" {
		id = strings.ToLower(ulid.Make().String())
	}

	now := time.Now().UTC()
	site := &model.Site{
		ID:     id,
		Name:   *name,
		Domain: *domain,
		Status: model.SiteStatusActive,
		Analytics: &model.SiteAnalytics{
			Enabled:      !*disabled,
			ExcludeAdmin: *excludeAdmin,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := repo.CreateSite(ctx, site); err != nil {
		fmt.Fprintln(os.Stderr, "create site:", err)
		os.Exit(1)
	}

	out := output{
		SiteID:    site.ID,
		Name:      site.Name,
		Domain:    site.Domain,
		Analytics: site.Analytics.Enabled,
		HitURL:    strings.TrimRight(*baseURL, "/") + "/api/v1/analytics/hit/" + site.ID,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.SiteID)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
