// Package assets holds the brand assets document and the reducer that
// every change to it goes through.
package assets

import (
	"maps"
	"slices"
	"time"
)

type BrandFoundation struct {
	BrandName      string   `json:"brandName" mapstructure:"brandName"`
	Mission        string   `json:"mission" mapstructure:"mission"`
	Values         []string `json:"values,omitempty" mapstructure:"values"`
	TargetAudience string   `json:"targetAudience" mapstructure:"targetAudience"`
	Personality    []string `json:"personality,omitempty" mapstructure:"personality"`
	KeyMessaging   []string `json:"keyMessaging,omitempty" mapstructure:"keyMessaging"`
	USPs           []string `json:"usps,omitempty" mapstructure:"usps"`
}

type LogoConcept struct {
	Style    string `json:"style" mapstructure:"style"`
	Prompt   string `json:"prompt" mapstructure:"prompt"`
	ImageKey string `json:"imageKey,omitempty" mapstructure:"imageKey"`
}

type ColorSwatch struct {
	Name  string `json:"name" mapstructure:"name"`
	Hex   string `json:"hex" mapstructure:"hex"`
	Usage string `json:"usage,omitempty" mapstructure:"usage"`
}

type FontRecommendation struct {
	Headings string `json:"headings" mapstructure:"headings"`
	Body     string `json:"body" mapstructure:"body"`
}

type CoreMediaAssets struct {
	LogoConcepts []LogoConcept      `json:"logoConcepts,omitempty" mapstructure:"logoConcepts"`
	ColorPalette []ColorSwatch      `json:"colorPalette,omitempty" mapstructure:"colorPalette"`
	Fonts        FontRecommendation `json:"fontRecommendations" mapstructure:"fontRecommendations"`
}

type UnifiedProfileAssets struct {
	AccountName          string `json:"accountName" mapstructure:"accountName"`
	Username             string `json:"username" mapstructure:"username"`
	ProfilePicturePrompt string `json:"profilePicturePrompt,omitempty" mapstructure:"profilePicturePrompt"`
	ProfilePictureURL    string `json:"profilePictureUrl,omitempty" mapstructure:"profilePictureUrl"`
	CoverPhotoPrompt     string `json:"coverPhotoPrompt,omitempty" mapstructure:"coverPhotoPrompt"`
	CoverPhotoURL        string `json:"coverPhotoUrl,omitempty" mapstructure:"coverPhotoUrl"`
}

// MediaPlanPost is one scheduled piece of content. ImageKey and VideoKey
// index into the document's generated-media maps; ImageKeys is the carousel
// equivalent, parallel to CarouselImageURLs.
type MediaPlanPost struct {
	ID                 string     `json:"id" mapstructure:"id"`
	Platform           string     `json:"platform" mapstructure:"platform"`
	ContentType        string     `json:"contentType" mapstructure:"contentType"`
	Title              string     `json:"title" mapstructure:"title"`
	Content            string     `json:"content" mapstructure:"content"`
	Hashtags           []string   `json:"hashtags,omitempty" mapstructure:"hashtags"`
	CTA                string     `json:"cta,omitempty" mapstructure:"cta"`
	MediaPrompt        string     `json:"mediaPrompt,omitempty" mapstructure:"mediaPrompt"`
	ImageURL           string     `json:"imageUrl,omitempty" mapstructure:"imageUrl"`
	ImageKey           string     `json:"imageKey,omitempty" mapstructure:"imageKey"`
	ImageKeys          []string   `json:"imageKeys,omitempty" mapstructure:"imageKeys"`
	CarouselImageURLs  []string   `json:"carouselImageUrls,omitempty" mapstructure:"carouselImageUrls"`
	VideoURL           string     `json:"videoUrl,omitempty" mapstructure:"videoUrl"`
	VideoKey           string     `json:"videoKey,omitempty" mapstructure:"videoKey"`
	Status             string     `json:"status,omitempty" mapstructure:"status"`
	ScheduledAt        *time.Time `json:"scheduledAt,omitempty" mapstructure:"scheduledAt"`
	PromotedProductIDs []string   `json:"promotedProductIds,omitempty" mapstructure:"promotedProductIds"`
}

type MediaPlanWeek struct {
	Week  int              `json:"week" mapstructure:"week"`
	Theme string           `json:"theme" mapstructure:"theme"`
	Posts []*MediaPlanPost `json:"posts" mapstructure:"posts"`
}

type MediaPlanGroup struct {
	ID        string           `json:"id" mapstructure:"id"`
	Title     string           `json:"title" mapstructure:"title"`
	Prompt    string           `json:"prompt,omitempty" mapstructure:"prompt"`
	PersonaID string           `json:"personaId,omitempty" mapstructure:"personaId"`
	Plan      []*MediaPlanWeek `json:"plan" mapstructure:"plan"`
}

type Persona struct {
	ID           string `json:"id" mapstructure:"id"`
	NickName     string `json:"nickName" mapstructure:"nickName"`
	Demographics string `json:"demographics,omitempty" mapstructure:"demographics"`
	Backstory    string `json:"backstory,omitempty" mapstructure:"backstory"`
	AvatarURL    string `json:"avatarUrl,omitempty" mapstructure:"avatarUrl"`
}

type Trend struct {
	ID       string `json:"id" mapstructure:"id"`
	Topic    string `json:"topic" mapstructure:"topic"`
	Keyword  string `json:"keyword,omitempty" mapstructure:"keyword"`
	Analysis string `json:"analysis,omitempty" mapstructure:"analysis"`
	Source   string `json:"source,omitempty" mapstructure:"source"`
}

type Idea struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	Format      string `json:"format,omitempty" mapstructure:"format"`
	TrendID     string `json:"trendId,omitempty" mapstructure:"trendId"`
}

// AffiliateLink is keyed by product id; posts reference it through
// PromotedProductIDs.
type AffiliateLink struct {
	ID          string `json:"id" mapstructure:"id"`
	ProductName string `json:"productName" mapstructure:"productName"`
	ProductURL  string `json:"productUrl" mapstructure:"productUrl"`
	Commission  string `json:"commission,omitempty" mapstructure:"commission"`
}

// Document is the brand assets document. Values reachable from a Document
// returned by Reduce must be treated as read-only; sharing between
// successive documents depends on it.
type Document struct {
	ID                   string               `json:"id,omitempty"`
	BrandFoundation      BrandFoundation      `json:"brandFoundation"`
	CoreMediaAssets      CoreMediaAssets      `json:"coreMediaAssets"`
	UnifiedProfileAssets UnifiedProfileAssets `json:"unifiedProfileAssets"`
	MediaPlans           []*MediaPlanGroup    `json:"mediaPlans,omitempty"`
	Personas             []Persona            `json:"personas,omitempty"`
	Trends               []Trend              `json:"trends,omitempty"`
	Ideas                []Idea               `json:"ideas,omitempty"`
	AffiliateLinks       []AffiliateLink      `json:"affiliateLinks,omitempty"`
	GeneratedImages      map[string]string    `json:"generatedImages,omitempty"`
	GeneratedVideos      map[string]string    `json:"generatedVideos,omitempty"`
}

// Clone returns a deep copy sharing nothing with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return &Document{}
	}
	out := *d
	out.BrandFoundation = d.BrandFoundation.clone()
	out.CoreMediaAssets = CoreMediaAssets{
		LogoConcepts: slices.Clone(d.CoreMediaAssets.LogoConcepts),
		ColorPalette: slices.Clone(d.CoreMediaAssets.ColorPalette),
		Fonts:        d.CoreMediaAssets.Fonts,
	}
	if d.MediaPlans != nil {
		out.MediaPlans = make([]*MediaPlanGroup, len(d.MediaPlans))
		for i, g := range d.MediaPlans {
			out.MediaPlans[i] = g.clone()
		}
	}
	out.Personas = slices.Clone(d.Personas)
	out.Trends = slices.Clone(d.Trends)
	out.Ideas = slices.Clone(d.Ideas)
	out.AffiliateLinks = slices.Clone(d.AffiliateLinks)
	out.GeneratedImages = cloneMediaMap(d.GeneratedImages)
	out.GeneratedVideos = cloneMediaMap(d.GeneratedVideos)
	return &out
}

// Plan returns the group with the given id.
func (d *Document) Plan(planID string) (*MediaPlanGroup, bool) {
	if d == nil {
		return nil, false
	}
	i := d.planIndex(planID)
	if i < 0 {
		return nil, false
	}
	return d.MediaPlans[i], true
}

func (d *Document) planIndex(planID string) int {
	return slices.IndexFunc(d.MediaPlans, func(g *MediaPlanGroup) bool { return g != nil && g.ID == planID })
}

func (b BrandFoundation) clone() BrandFoundation {
	b.Values = slices.Clone(b.Values)
	b.Personality = slices.Clone(b.Personality)
	b.KeyMessaging = slices.Clone(b.KeyMessaging)
	b.USPs = slices.Clone(b.USPs)
	return b
}

func (g *MediaPlanGroup) clone() *MediaPlanGroup {
	if g == nil {
		return nil
	}
	out := *g
	if g.Plan != nil {
		out.Plan = make([]*MediaPlanWeek, len(g.Plan))
		for i, w := range g.Plan {
			out.Plan[i] = w.clone()
		}
	}
	return &out
}

func (w *MediaPlanWeek) clone() *MediaPlanWeek {
	if w == nil {
		return nil
	}
	out := *w
	if w.Posts != nil {
		out.Posts = make([]*MediaPlanPost, len(w.Posts))
		for i, p := range w.Posts {
			out.Posts[i] = p.clone()
		}
	}
	return &out
}

func (p *MediaPlanPost) clone() *MediaPlanPost {
	if p == nil {
		return nil
	}
	out := *p
	out.Hashtags = slices.Clone(p.Hashtags)
	out.ImageKeys = slices.Clone(p.ImageKeys)
	out.CarouselImageURLs = slices.Clone(p.CarouselImageURLs)
	out.PromotedProductIDs = slices.Clone(p.PromotedProductIDs)
	if p.ScheduledAt != nil {
		at := *p.ScheduledAt
		out.ScheduledAt = &at
	}
	return &out
}

// cloneMediaMap copies m; an empty map becomes nil so absent and empty
// compare equal after a round trip.
func cloneMediaMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}
