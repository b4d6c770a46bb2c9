package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JR-coderli/EFsafari/internal/analytics"
	"github.com/JR-coderli/EFsafari/internal/app"
	"github.com/JR-coderli/EFsafari/internal/config"
	"github.com/JR-coderli/EFsafari/internal/models"
	"github.com/JR-coderli/EFsafari/internal/observability"
	"github.com/JR-coderli/EFsafari/internal/token"
)

var (
	days        = flag.Int("days", 14, "days of daily facts to generate, ending yesterday")
	hours       = flag.Int("hours", 48, "hours of hourly rows to generate, ending at the current hour")
	adsetsPer   = flag.Int("adsets", 4, "adsets per campaign")
	campaignsPM = flag.Int("campaigns", 3, "campaigns per media")
	seed        = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipUsers   = flag.Bool("skip-users", false, "do not create the demo users")
	skipReload  = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
)

var (
	mediaNames = []string{"Mintegral", "Google", "Meta", "TikTok", "Unity"}
	offerNames = []string{"ShopNow US", "GameHub DE", "VPN Fast", "Cleaner Pro", "Dating JP"}
	landers    = []analytics.LanderURL{
		{ID: "l1", Name: "Quiz", URL: "https://lp.example.com/quiz"},
		{ID: "l2", Name: "Sweepstake", URL: "https://lp.example.com/sweeps"},
		{ID: "l3", Name: "Direct", URL: "https://lp.example.com/direct"},
	}
)

var demoUsers = []models.User{
	{Username: "admin", DisplayName: "Admin", Role: models.RoleAdmin, Active: true},
	{Username: "ops", DisplayName: "Ops US", Role: models.RoleOps, Keywords: []string{"US"}, Active: true},
	{Username: "ops02", DisplayName: "Ops Mintegral", Role: models.RoleOps02, Keywords: []string{"mintegral"}, Active: true},
	{Username: "business", DisplayName: "Business Shop", Role: models.RoleBusiness, Keywords: []string{"shop"}, Active: true},
}

// adset is one generated ad set with its fixed dimension values.
type adset struct {
	media, mediaID       string
	offer, offerID       string
	advertiser           string
	campaign, campaignID string
	name, id             string
	lander               analytics.LanderURL

	ctr, cvr, cpc, payout float64
}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	cfg.ETLConfigPath = ""
	ctx := context.Background()

	a, err := app.Open(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal("open backends", zap.Error(err))
	}
	defer a.Close()

	r := rand.New(rand.NewSource(*seed))
	sets := generateAdsets(r)

	if !*skipUsers {
		for _, u := range demoUsers {
			if _, ok := a.Users.FindByUsername(u.Username); ok {
				continue
			}
			if err := a.Postgres.InsertUser(ctx, &u); err != nil {
				logger.Fatal("insert user", zap.String("username", u.Username), zap.Error(err))
			}
			logger.Info("created user", zap.String("username", u.Username), zap.String("role", u.Role))
		}
	}

	if err := a.Warehouse.UpsertLanderURLs(ctx, landers); err != nil {
		logger.Fatal("insert landers", zap.Error(err))
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	for d := *days; d >= 1; d-- {
		date := today.AddDate(0, 0, -d)
		if err := a.Warehouse.DeleteFacts(ctx, date); err != nil {
			logger.Fatal("delete facts", zap.Error(err))
		}
		if err := a.Warehouse.InsertFacts(ctx, dailyFacts(r, sets, date)); err != nil {
			logger.Fatal("insert facts", zap.Error(err))
		}
	}

	end := time.Now().UTC().Truncate(time.Hour).Add(time.Hour)
	start := end.Add(-time.Duration(*hours) * time.Hour)
	if err := a.Warehouse.DeleteHourlyRange(ctx, start, end); err != nil {
		logger.Fatal("delete hourly rows", zap.Error(err))
	}
	if err := a.Warehouse.InsertHourly(ctx, hourlyRows(r, sets, start, end)); err != nil {
		logger.Fatal("insert hourly rows", zap.Error(err))
	}

	fmt.Printf("fake data inserted: %d adsets, %d days, %d hours\n", len(sets), *days, *hours)

	if !*skipReload {
		if err := callReloadEndpoint(&cfg, a); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server data: %v\n", err)
		} else {
			fmt.Println("server data reloaded")
		}
	}
}

func generateAdsets(r *rand.Rand) []adset {
	var out []adset
	for mi, media := range mediaNames {
		for c := 0; c < *campaignsPM; c++ {
			offerIdx := r.Intn(len(offerNames))
			campaignID := fmt.Sprintf("c%d%02d", mi, c)
			for s := 0; s < *adsetsPer; s++ {
				l := landers[r.Intn(len(landers))]
				out = append(out, adset{
					media:      media,
					mediaID:    fmt.Sprintf("m%d", mi),
					offer:      offerNames[offerIdx],
					offerID:    fmt.Sprintf("o%d", offerIdx),
					advertiser: fmt.Sprintf("Advertiser %d", offerIdx%2+1),
					campaign:   fmt.Sprintf("%s %s #%d", media, offerNames[offerIdx], c+1),
					campaignID: campaignID,
					name:       fmt.Sprintf("%s_%s_adset%d", campaignID, randomCountry(r), s+1),
					id:         fmt.Sprintf("%s-a%d", campaignID, s),
					lander:     l,
					ctr:        0.005 + r.Float64()*0.03,
					cvr:        0.01 + r.Float64()*0.08,
					cpc:        0.05 + r.Float64()*0.4,
					payout:     1 + r.Float64()*9,
				})
			}
		}
	}
	return out
}

func randomCountry(r *rand.Rand) string {
	countries := []string{"US", "DE", "JP", "BR", "GB"}
	return countries[r.Intn(len(countries))]
}

// simulate draws one bucket of traffic for s scaled by volume.
func simulate(r *rand.Rand, s adset, volume float64) models.MetricTuple {
	imps := uint64(volume * (0.5 + r.Float64()))
	clicks := uint64(float64(imps) * s.ctr)
	conv := uint64(float64(clicks) * s.cvr)
	mobile := 0.6 + r.Float64()*0.3
	return models.MetricTuple{
		Impressions:       imps,
		Clicks:            clicks,
		Conversions:       conv,
		Spend:             float64(clicks) * s.cpc,
		Revenue:           float64(conv) * s.payout,
		MobileImpressions: uint64(float64(imps) * mobile),
		MobileClicks:      uint64(float64(clicks) * mobile),
		MobileConversions: uint64(float64(conv) * mobile),
	}
}

func dailyFacts(r *rand.Rand, sets []adset, date time.Time) []models.FactRow {
	rows := make([]models.FactRow, 0, len(sets))
	for i, s := range sets {
		rows = append(rows, models.FactRow{
			ReportDate:   date,
			DataSource:   "fake",
			Media:        s.media,
			MediaID:      s.mediaID,
			Offer:        s.offer,
			OfferID:      s.offerID,
			Advertiser:   s.advertiser,
			AdvertiserID: s.offerID[1:],
			Lander:       s.lander.Name,
			LanderID:     s.lander.ID,
			Campaign:     s.campaign,
			CampaignID:   s.campaignID,
			Adset:        s.name,
			AdsetID:      s.id,
			Ads:          fmt.Sprintf("ad-%d", i%3+1),
			AdsID:        fmt.Sprintf("%s-ad%d", s.id, i%3+1),
			MetricTuple:  simulate(r, s, 20000),
		})
	}
	return rows
}

func hourlyRows(r *rand.Rand, sets []adset, start, end time.Time) []models.HourlyRow {
	var rows []models.HourlyRow
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		for _, s := range sets {
			m := simulate(r, s, 800)
			rows = append(rows, models.HourlyRow{
				ReportDate:   t.Truncate(24 * time.Hour),
				ReportHour:   uint8(t.Hour()),
				Timezone:     "UTC",
				Media:        s.media,
				MediaID:      s.mediaID,
				Offer:        s.offer,
				OfferID:      s.offerID,
				Advertiser:   s.advertiser,
				AdvertiserID: s.offerID[1:],
				Campaign:     s.campaign,
				CampaignID:   s.campaignID,
				Adset:        s.name,
				AdsetID:      s.id,
				Impressions:  m.Impressions,
				Clicks:       m.Clicks,
				Conversions:  m.Conversions,
				Spend:        m.Spend,
				Revenue:      m.Revenue,
			})
		}
	}
	return rows
}

func callReloadEndpoint(cfg *config.Config, a *app.App) error {
	if err := a.Users.Reload(context.Background()); err != nil {
		return fmt.Errorf("reload users: %w", err)
	}
	admin, ok := a.Users.FindByUsername("admin")
	if !ok {
		return fmt.Errorf("no admin user to sign the reload request")
	}
	tok, err := token.Generate(admin.ID, admin.Username, admin.Role, []byte(cfg.TokenSecret))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
