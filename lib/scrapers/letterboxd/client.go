// Package letterboxd scrapes a letterboxd-style rated-films listing. The
// site has no stable public schema, everything here is best-effort: entries
// missing the expected markers are skipped, never fabricated.
package letterboxd

import (
	"time"

	"boxdbot-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const DefaultBaseUrl = "https://letterboxd.com"

type ClientOptions struct {
	// defaults to DefaultBaseUrl, tests point this at a fixture server
	BaseUrl string
	// defaults to 2 requests per second
	RequestsPerSecond float64
	// defaults to 30 seconds
	Timeout time.Duration
}

type Client struct {
	Http *resty.Client
}

func NewClient(opts ClientOptions) *Client {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetTimeout(opts.Timeout)

	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(httpClient, "scrapers/letterboxd")

	return &Client{Http: httpClient}
}
