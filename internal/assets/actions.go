package assets

import (
	"encoding/json"
	"fmt"
	"time"
)

type ActionKind string

const (
	KindHydrate                    ActionKind = "HYDRATE"
	KindReset                      ActionKind = "RESET"
	KindUpdateBrandFoundation      ActionKind = "UPDATE_BRAND_FOUNDATION"
	KindUpdateCoreMediaAssets      ActionKind = "UPDATE_CORE_MEDIA_ASSETS"
	KindUpdateUnifiedProfileAssets ActionKind = "UPDATE_UNIFIED_PROFILE_ASSETS"
	KindUpsertMediaPlanGroup       ActionKind = "UPSERT_MEDIA_PLAN_GROUP"
	KindDeleteMediaPlanGroup       ActionKind = "DELETE_MEDIA_PLAN_GROUP"
	KindRenameMediaPlanGroup       ActionKind = "RENAME_MEDIA_PLAN_GROUP"
	KindUpdatePost                 ActionKind = "UPDATE_POST"
	KindSetPostImage               ActionKind = "SET_POST_IMAGE"
	KindSetCarouselImage           ActionKind = "SET_CAROUSEL_IMAGE"
	KindSetPostVideo               ActionKind = "SET_POST_VIDEO"
	KindSchedulePost               ActionKind = "SCHEDULE_POST"
	KindBulkSchedulePosts          ActionKind = "BULK_SCHEDULE_POSTS"
	KindDeletePost                 ActionKind = "DELETE_POST"
	KindAssignPersonaToPlan        ActionKind = "ASSIGN_PERSONA_TO_PLAN"
	KindUpsertPersonas             ActionKind = "UPSERT_PERSONAS"
	KindDeletePersona              ActionKind = "DELETE_PERSONA"
	KindUpsertTrends               ActionKind = "UPSERT_TRENDS"
	KindDeleteTrend                ActionKind = "DELETE_TREND"
	KindUpsertIdeas                ActionKind = "UPSERT_IDEAS"
	KindDeleteIdea                 ActionKind = "DELETE_IDEA"
	KindUpsertAffiliateLinks       ActionKind = "UPSERT_AFFILIATE_LINKS"
	KindDeleteAffiliateLinks       ActionKind = "DELETE_AFFILIATE_LINKS"
	KindSetGeneratedImage          ActionKind = "SET_GENERATED_IMAGE"
	KindSetGeneratedVideo          ActionKind = "SET_GENERATED_VIDEO"
)

// Action is a named change to the document.
type Action interface {
	Kind() ActionKind
}

// PostRef addresses a post inside a plan either by id or by week/post
// coordinate. When both are set they must name the same post.
type PostRef struct {
	PlanID    string `json:"planId"`
	PostID    string `json:"postId,omitempty"`
	WeekIndex *int   `json:"weekIndex,omitempty"`
	PostIndex *int   `json:"postIndex,omitempty"`
}

// At builds a coordinate reference.
func At(planID string, week, post int) PostRef {
	return PostRef{PlanID: planID, WeekIndex: &week, PostIndex: &post}
}

// ByID builds an id reference.
func ByID(planID, postID string) PostRef {
	return PostRef{PlanID: planID, PostID: postID}
}

// PostFields is a partial post update; nil fields are left untouched.
type PostFields struct {
	Platform           *string   `json:"platform,omitempty"`
	ContentType        *string   `json:"contentType,omitempty"`
	Title              *string   `json:"title,omitempty"`
	Content            *string   `json:"content,omitempty"`
	Hashtags           *[]string `json:"hashtags,omitempty"`
	CTA                *string   `json:"cta,omitempty"`
	MediaPrompt        *string   `json:"mediaPrompt,omitempty"`
	ImageURL           *string   `json:"imageUrl,omitempty"`
	ImageKey           *string   `json:"imageKey,omitempty"`
	VideoURL           *string   `json:"videoUrl,omitempty"`
	VideoKey           *string   `json:"videoKey,omitempty"`
	Status             *string   `json:"status,omitempty"`
	PromotedProductIDs *[]string `json:"promotedProductIds,omitempty"`
}

type Hydrate struct {
	Document *Document `json:"document"`
}

type Reset struct{}

type UpdateBrandFoundation struct {
	BrandFoundation BrandFoundation `json:"brandFoundation"`
}

type UpdateCoreMediaAssets struct {
	CoreMediaAssets CoreMediaAssets `json:"coreMediaAssets"`
}

type UpdateUnifiedProfileAssets struct {
	UnifiedProfileAssets UnifiedProfileAssets `json:"unifiedProfileAssets"`
}

type UpsertMediaPlanGroup struct {
	Group *MediaPlanGroup `json:"group"`
}

type DeleteMediaPlanGroup struct {
	PlanID string `json:"planId"`
}

type RenameMediaPlanGroup struct {
	PlanID string `json:"planId"`
	Title  string `json:"title"`
}

type UpdatePost struct {
	Ref    PostRef    `json:"ref"`
	Fields PostFields `json:"fields"`
}

type SetPostImage struct {
	Ref      PostRef `json:"ref"`
	ImageURL string  `json:"imageUrl"`
	ImageKey string  `json:"imageKey"`
}

// SetCarouselImage sets slot Index of a carousel post. Index may equal the
// current slot count to append a slot.
type SetCarouselImage struct {
	Ref      PostRef `json:"ref"`
	Index    int     `json:"index"`
	ImageURL string  `json:"imageUrl"`
	ImageKey string  `json:"imageKey"`
}

type SetPostVideo struct {
	Ref      PostRef `json:"ref"`
	VideoURL string  `json:"videoUrl"`
	VideoKey string  `json:"videoKey"`
}

// SchedulePost sets or, with a nil ScheduledAt, clears a post's slot.
type SchedulePost struct {
	Ref         PostRef    `json:"ref"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

type BulkSchedulePosts struct {
	Items []SchedulePost `json:"items"`
}

type DeletePost struct {
	Ref PostRef `json:"ref"`
}

// AssignPersonaToPlan sets the plan's persona; an empty PersonaID clears it.
type AssignPersonaToPlan struct {
	PlanID    string `json:"planId"`
	PersonaID string `json:"personaId"`
}

type UpsertPersonas struct {
	Personas []Persona `json:"personas"`
}

type DeletePersona struct {
	PersonaID string `json:"personaId"`
}

type UpsertTrends struct {
	Trends []Trend `json:"trends"`
}

type DeleteTrend struct {
	TrendID string `json:"trendId"`
}

type UpsertIdeas struct {
	Ideas []Idea `json:"ideas"`
}

type DeleteIdea struct {
	IdeaID string `json:"ideaId"`
}

type UpsertAffiliateLinks struct {
	Links []AffiliateLink `json:"links"`
}

type DeleteAffiliateLinks struct {
	IDs []string `json:"ids"`
}

// SetGeneratedImage records a generated image url; an empty URL removes
// the key.
type SetGeneratedImage struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type SetGeneratedVideo struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (Hydrate) Kind() ActionKind                    { return KindHydrate }
func (Reset) Kind() ActionKind                      { return KindReset }
func (UpdateBrandFoundation) Kind() ActionKind      { return KindUpdateBrandFoundation }
func (UpdateCoreMediaAssets) Kind() ActionKind      { return KindUpdateCoreMediaAssets }
func (UpdateUnifiedProfileAssets) Kind() ActionKind { return KindUpdateUnifiedProfileAssets }
func (UpsertMediaPlanGroup) Kind() ActionKind       { return KindUpsertMediaPlanGroup }
func (DeleteMediaPlanGroup) Kind() ActionKind       { return KindDeleteMediaPlanGroup }
func (RenameMediaPlanGroup) Kind() ActionKind       { return KindRenameMediaPlanGroup }
func (UpdatePost) Kind() ActionKind                 { return KindUpdatePost }
func (SetPostImage) Kind() ActionKind               { return KindSetPostImage }
func (SetCarouselImage) Kind() ActionKind           { return KindSetCarouselImage }
func (SetPostVideo) Kind() ActionKind               { return KindSetPostVideo }
func (SchedulePost) Kind() ActionKind               { return KindSchedulePost }
func (BulkSchedulePosts) Kind() ActionKind          { return KindBulkSchedulePosts }
func (DeletePost) Kind() ActionKind                 { return KindDeletePost }
func (AssignPersonaToPlan) Kind() ActionKind        { return KindAssignPersonaToPlan }
func (UpsertPersonas) Kind() ActionKind             { return KindUpsertPersonas }
func (DeletePersona) Kind() ActionKind              { return KindDeletePersona }
func (UpsertTrends) Kind() ActionKind               { return KindUpsertTrends }
func (DeleteTrend) Kind() ActionKind                { return KindDeleteTrend }
func (UpsertIdeas) Kind() ActionKind                { return KindUpsertIdeas }
func (DeleteIdea) Kind() ActionKind                 { return KindDeleteIdea }
func (UpsertAffiliateLinks) Kind() ActionKind       { return KindUpsertAffiliateLinks }
func (DeleteAffiliateLinks) Kind() ActionKind       { return KindDeleteAffiliateLinks }
func (SetGeneratedImage) Kind() ActionKind          { return KindSetGeneratedImage }
func (SetGeneratedVideo) Kind() ActionKind          { return KindSetGeneratedVideo }

var decoders = map[ActionKind]func(json.RawMessage) (Action, error){
	KindHydrate:                    decodeAs[Hydrate],
	KindReset:                      decodeAs[Reset],
	KindUpdateBrandFoundation:      decodeAs[UpdateBrandFoundation],
	KindUpdateCoreMediaAssets:      decodeAs[UpdateCoreMediaAssets],
	KindUpdateUnifiedProfileAssets: decodeAs[UpdateUnifiedProfileAssets],
	KindUpsertMediaPlanGroup:       decodeAs[UpsertMediaPlanGroup],
	KindDeleteMediaPlanGroup:       decodeAs[DeleteMediaPlanGroup],
	KindRenameMediaPlanGroup:       decodeAs[RenameMediaPlanGroup],
	KindUpdatePost:                 decodeAs[UpdatePost],
	KindSetPostImage:               decodeAs[SetPostImage],
	KindSetCarouselImage:           decodeAs[SetCarouselImage],
	KindSetPostVideo:               decodeAs[SetPostVideo],
	KindSchedulePost:               decodeAs[SchedulePost],
	KindBulkSchedulePosts:          decodeAs[BulkSchedulePosts],
	KindDeletePost:                 decodeAs[DeletePost],
	KindAssignPersonaToPlan:        decodeAs[AssignPersonaToPlan],
	KindUpsertPersonas:             decodeAs[UpsertPersonas],
	KindDeletePersona:              decodeAs[DeletePersona],
	KindUpsertTrends:               decodeAs[UpsertTrends],
	KindDeleteTrend:                decodeAs[DeleteTrend],
	KindUpsertIdeas:                decodeAs[UpsertIdeas],
	KindDeleteIdea:                 decodeAs[DeleteIdea],
	KindUpsertAffiliateLinks:       decodeAs[UpsertAffiliateLinks],
	KindDeleteAffiliateLinks:       decodeAs[DeleteAffiliateLinks],
	KindSetGeneratedImage:          decodeAs[SetGeneratedImage],
	KindSetGeneratedVideo:          decodeAs[SetGeneratedVideo],
}

// Envelope is the wire form of an action.
type Envelope struct {
	Type    ActionKind      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeAction turns an envelope into a typed action.
func DecodeAction(env Envelope) (Action, error) {
	decode, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, env.Type)
	}
	return decode(env.Payload)
}

// EncodeAction is the inverse of DecodeAction.
func EncodeAction(a Action) (Envelope, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: a.Kind(), Payload: payload}, nil
}

func decodeAs[T Action](raw json.RawMessage) (Action, error) {
	var a T
	if len(raw) == 0 {
		return a, nil
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.Kind(), err)
	}
	return a, nil
}
