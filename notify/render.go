package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"idx_portal/models"
)

//go:embed templates
var templateFS embed.FS

// DefaultPreviewLimit is how many listings a digest shows before "Plus N more"
const DefaultPreviewLimit = 5

// Message is one rendered email
type Message struct {
	Subject string
	HTML    string
	Text    string
}

type RendererConfig struct {
	Brand        string
	AppURL       string
	PreviewLimit int
	Disclaimer   string
}

// Renderer turns digests and reminders into email bodies
type Renderer struct {
	cfg      RendererConfig
	client   *htmltemplate.Template
	shadow   *htmltemplate.Template
	reminder *htmltemplate.Template
	digestTx *texttemplate.Template
	expiryTx *texttemplate.Template
	minifier *minify.M
}

var funcs = map[string]any{
	"price": formatPrice,
	"count": formatCount,
	"sqft":  formatSquareFeet,
}

func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.PreviewLimit < 1 {
		cfg.PreviewLimit = DefaultPreviewLimit
	}
	cfg.AppURL = strings.TrimSuffix(cfg.AppURL, "/")

	page := func(name string) (*htmltemplate.Template, error) {
		return htmltemplate.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
	}

	r := &Renderer{cfg: cfg, minifier: minify.New()}
	r.minifier.AddFunc("text/html", html.Minify)

	var err error
	if r.client, err = page("client_digest.html"); err != nil {
		return nil, fmt.Errorf("parse client digest: %w", err)
	}
	if r.shadow, err = page("shadow_digest.html"); err != nil {
		return nil, fmt.Errorf("parse shadow digest: %w", err)
	}
	if r.reminder, err = page("expiry_reminder.html"); err != nil {
		return nil, fmt.Errorf("parse expiry reminder: %w", err)
	}
	if r.digestTx, err = texttemplate.New("digest.txt").Funcs(funcs).ParseFS(templateFS, "templates/digest.txt"); err != nil {
		return nil, fmt.Errorf("parse digest text: %w", err)
	}
	if r.expiryTx, err = texttemplate.New("expiry_reminder.txt").ParseFS(templateFS, "templates/expiry_reminder.txt"); err != nil {
		return nil, fmt.Errorf("parse reminder text: %w", err)
	}
	return r, nil
}

type digestData struct {
	Heading    string
	Accent     htmltemplate.CSS
	Brand      string
	AppURL     string
	Disclaimer string
	Shadow     bool
	Client     *models.Client
	Search     *models.SavedSearch
	Count      int
	Preview    []models.Listing
	More       int
}

func (r *Renderer) digest(client *models.Client, search *models.SavedSearch, listings []models.Listing, shadow bool) digestData {
	preview := listings
	if len(preview) > r.cfg.PreviewLimit {
		preview = preview[:r.cfg.PreviewLimit]
	}
	d := digestData{
		Heading:    "New Properties Match Your Search!",
		Accent:     "#2563eb",
		Brand:      r.cfg.Brand,
		AppURL:     r.cfg.AppURL,
		Disclaimer: r.cfg.Disclaimer,
		Shadow:     shadow,
		Client:     client,
		Search:     search,
		Count:      len(listings),
		Preview:    preview,
		More:       len(listings) - len(preview),
	}
	if shadow {
		d.Heading = "Shadow Alert: Client Notification"
		d.Accent = "#7c3aed"
	}
	return d
}

// ClientDigest renders the one message a client receives for a run
func (r *Renderer) ClientDigest(client *models.Client, search *models.SavedSearch, listings []models.Listing) (*Message, error) {
	data := r.digest(client, search, listings, false)
	return r.render(models.DigestSubject(len(listings), search.Name), r.client, r.digestTx, data)
}

// ShadowDigest renders the admin copy, attributed to the client and search
func (r *Renderer) ShadowDigest(client *models.Client, search *models.SavedSearch, listings []models.Listing) (*Message, error) {
	data := r.digest(client, search, listings, true)
	subject := fmt.Sprintf("Shadow: %d %s for %s - %s", len(listings), plural(len(listings), "Property", "Properties"), client.Name, search.Name)
	return r.render(subject, r.shadow, r.digestTx, data)
}

func (r *Renderer) ExpiryReminder(client *models.Client, daysLeft int) (*Message, error) {
	data := struct {
		Heading  string
		Accent   htmltemplate.CSS
		Brand    string
		AppURL   string
		Client   *models.Client
		DaysLeft int
	}{"Portal Access Expiring Soon", "#f59e0b", r.cfg.Brand, r.cfg.AppURL, client, daysLeft}

	subject := fmt.Sprintf("Portal Access Expiring in %d %s", daysLeft, plural(daysLeft, "Day", "Days"))
	return r.render(subject, r.reminder, r.expiryTx, data)
}

func (r *Renderer) render(subject string, h *htmltemplate.Template, t *texttemplate.Template, data any) (*Message, error) {
	var hb, tb bytes.Buffer
	if err := h.ExecuteTemplate(&hb, "layout", data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	if err := t.Execute(&tb, data); err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}

	body, err := r.minifier.String("text/html", hb.String())
	if err != nil {
		body = hb.String()
	}
	return &Message{Subject: subject, HTML: body, Text: strings.TrimSpace(tb.String()) + "\n"}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// formatPrice renders whole dollars with thousands separators, e.g. $1,149,900
func formatPrice(p float64) string {
	return "$" + groupThousands(int64(p+0.5))
}

func formatCount(v *int, noun string) string {
	if v == nil {
		return "N/A " + noun
	}
	return strconv.Itoa(*v) + " " + noun
}

func formatSquareFeet(v *int) string {
	if v == nil {
		return "N/A sqft"
	}
	return groupThousands(int64(*v)) + " sqft"
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
