package assets

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrPlanNotFound     = errors.New("media plan not found")
	ErrPostNotFound     = errors.New("post not found")
	ErrPostRefMismatch  = errors.New("post id and coordinate name different posts")
	ErrMissingID        = errors.New("entity id is required")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrPersonaNotFound  = errors.New("persona not found")
	ErrIndexOutOfRange  = errors.New("carousel index out of range")
	ErrInvalidReference = errors.New("invalid post reference")
)

// Reduce applies a to doc and returns the next document. doc is never
// modified: only the branch the action touches is copied and every other
// plan, week, post and list is shared with doc. On error doc is returned
// unchanged together with the error.
func Reduce(doc *Document, a Action) (*Document, error) {
	if doc == nil {
		doc = &Document{}
	}
	next, err := reduce(doc, a)
	if err != nil {
		return doc, err
	}
	return next, nil
}

func reduce(doc *Document, a Action) (*Document, error) {
	switch a := a.(type) {
	case Hydrate:
		return hydrate(a.Document), nil
	case Reset:
		return &Document{}, nil

	case UpdateBrandFoundation:
		next := *doc
		next.BrandFoundation = a.BrandFoundation.clone()
		return &next, nil
	case UpdateCoreMediaAssets:
		next := *doc
		next.CoreMediaAssets = CoreMediaAssets{
			LogoConcepts: slices.Clone(a.CoreMediaAssets.LogoConcepts),
			ColorPalette: slices.Clone(a.CoreMediaAssets.ColorPalette),
			Fonts:        a.CoreMediaAssets.Fonts,
		}
		return &next, nil
	case UpdateUnifiedProfileAssets:
		next := *doc
		next.UnifiedProfileAssets = a.UnifiedProfileAssets
		return &next, nil

	case UpsertMediaPlanGroup:
		return upsertPlan(doc, a.Group)
	case DeleteMediaPlanGroup:
		return deletePlan(doc, a.PlanID), nil
	case RenameMediaPlanGroup:
		return updatePlan(doc, a.PlanID, func(g *MediaPlanGroup) error {
			g.Title = strings.TrimSpace(a.Title)
			return nil
		})

	case UpdatePost:
		return updatePost(doc, a.Ref, func(p *MediaPlanPost) error {
			a.Fields.apply(p)
			return nil
		})
	case SetPostImage:
		return updatePost(doc, a.Ref, func(p *MediaPlanPost) error {
			p.ImageURL = a.ImageURL
			p.ImageKey = a.ImageKey
			return nil
		})
	case SetCarouselImage:
		return updatePost(doc, a.Ref, func(p *MediaPlanPost) error {
			return setCarouselSlot(p, a.Index, a.ImageURL, a.ImageKey)
		})
	case SetPostVideo:
		return updatePost(doc, a.Ref, func(p *MediaPlanPost) error {
			p.VideoURL = a.VideoURL
			p.VideoKey = a.VideoKey
			return nil
		})
	case SchedulePost:
		return schedule(doc, a)
	case BulkSchedulePosts:
		next := doc
		for i, item := range a.Items {
			var err error
			next, err = schedule(next, item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
		}
		return next, nil
	case DeletePost:
		return deletePost(doc, a.Ref)

	case AssignPersonaToPlan:
		if a.PersonaID != "" && !slices.ContainsFunc(doc.Personas, func(p Persona) bool { return p.ID == a.PersonaID }) {
			return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, a.PersonaID)
		}
		return updatePlan(doc, a.PlanID, func(g *MediaPlanGroup) error {
			g.PersonaID = a.PersonaID
			return nil
		})
	case UpsertPersonas:
		list, err := upsertByID(doc.Personas, a.Personas, func(p Persona) string { return p.ID })
		if err != nil {
			return nil, err
		}
		next := *doc
		next.Personas = list
		return &next, nil
	case DeletePersona:
		return deletePersona(doc, a.PersonaID), nil
	case UpsertTrends:
		list, err := upsertByID(doc.Trends, a.Trends, func(t Trend) string { return t.ID })
		if err != nil {
			return nil, err
		}
		next := *doc
		next.Trends = list
		return &next, nil
	case DeleteTrend:
		list, ok := removeByID(doc.Trends, func(t Trend) bool { return t.ID == a.TrendID })
		if !ok {
			return doc, nil
		}
		next := *doc
		next.Trends = list
		return &next, nil
	case UpsertIdeas:
		list, err := upsertByID(doc.Ideas, a.Ideas, func(i Idea) string { return i.ID })
		if err != nil {
			return nil, err
		}
		next := *doc
		next.Ideas = list
		return &next, nil
	case DeleteIdea:
		list, ok := removeByID(doc.Ideas, func(i Idea) bool { return i.ID == a.IdeaID })
		if !ok {
			return doc, nil
		}
		next := *doc
		next.Ideas = list
		return &next, nil
	case UpsertAffiliateLinks:
		list, err := upsertByID(doc.AffiliateLinks, a.Links, func(l AffiliateLink) string { return l.ID })
		if err != nil {
			return nil, err
		}
		next := *doc
		next.AffiliateLinks = list
		return &next, nil
	case DeleteAffiliateLinks:
		return deleteAffiliateLinks(doc, a.IDs), nil

	case SetGeneratedImage:
		if strings.TrimSpace(a.Key) == "" {
			return nil, ErrMissingID
		}
		next := *doc
		next.GeneratedImages = setMediaKey(doc.GeneratedImages, a.Key, a.URL)
		return &next, nil
	case SetGeneratedVideo:
		if strings.TrimSpace(a.Key) == "" {
			return nil, ErrMissingID
		}
		next := *doc
		next.GeneratedVideos = setMediaKey(doc.GeneratedVideos, a.Key, a.URL)
		return &next, nil
	}
	if a == nil {
		return nil, ErrUnknownAction
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAction, a.Kind())
}

func hydrate(src *Document) *Document {
	if src == nil {
		return &Document{}
	}
	return src.Clone()
}

func (f PostFields) apply(p *MediaPlanPost) {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&p.Platform, f.Platform)
	setString(&p.ContentType, f.ContentType)
	setString(&p.Title, f.Title)
	setString(&p.Content, f.Content)
	setString(&p.CTA, f.CTA)
	setString(&p.MediaPrompt, f.MediaPrompt)
	setString(&p.ImageURL, f.ImageURL)
	setString(&p.ImageKey, f.ImageKey)
	setString(&p.VideoURL, f.VideoURL)
	setString(&p.VideoKey, f.VideoKey)
	setString(&p.Status, f.Status)
	if f.Hashtags != nil {
		p.Hashtags = slices.Clone(*f.Hashtags)
	}
	if f.PromotedProductIDs != nil {
		p.PromotedProductIDs = slices.Clone(*f.PromotedProductIDs)
	}
}

func setCarouselSlot(p *MediaPlanPost, index int, url, key string) error {
	slots := max(len(p.ImageKeys), len(p.CarouselImageURLs))
	if index < 0 || index > slots {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, slots)
	}
	keys := make([]string, max(slots, index+1))
	copy(keys, p.ImageKeys)
	urls := make([]string, len(keys))
	copy(urls, p.CarouselImageURLs)
	keys[index] = key
	urls[index] = url
	p.ImageKeys = keys
	p.CarouselImageURLs = urls
	return nil
}

func schedule(doc *Document, a SchedulePost) (*Document, error) {
	return updatePost(doc, a.Ref, func(p *MediaPlanPost) error {
		if a.ScheduledAt == nil {
			p.ScheduledAt = nil
			return nil
		}
		at := *a.ScheduledAt
		p.ScheduledAt = &at
		return nil
	})
}

// postLocation is a resolved PostRef.
type postLocation struct {
	plan, week, post int
}

func (d *Document) resolve(ref PostRef) (postLocation, error) {
	gi := d.planIndex(ref.PlanID)
	if gi < 0 {
		return postLocation{}, fmt.Errorf("%w: %s", ErrPlanNotFound, ref.PlanID)
	}
	group := d.MediaPlans[gi]

	byCoord := postLocation{plan: gi, week: -1, post: -1}
	if (ref.WeekIndex == nil) != (ref.PostIndex == nil) {
		return postLocation{}, fmt.Errorf("%w: week and post index must be given together", ErrInvalidReference)
	}
	if ref.WeekIndex != nil {
		w, p := *ref.WeekIndex, *ref.PostIndex
		if w < 0 || w >= len(group.Plan) || group.Plan[w] == nil || p < 0 || p >= len(group.Plan[w].Posts) || group.Plan[w].Posts[p] == nil {
			return postLocation{}, fmt.Errorf("%w: %s week %d post %d", ErrPostNotFound, ref.PlanID, w, p)
		}
		byCoord.week, byCoord.post = w, p
	}

	if ref.PostID == "" {
		if byCoord.week < 0 {
			return postLocation{}, fmt.Errorf("%w: no post id or coordinate", ErrInvalidReference)
		}
		return byCoord, nil
	}

	for wi, week := range group.Plan {
		if week == nil {
			continue
		}
		for pi, post := range week.Posts {
			if post == nil || post.ID != ref.PostID {
				continue
			}
			found := postLocation{plan: gi, week: wi, post: pi}
			if byCoord.week >= 0 && byCoord != found {
				return postLocation{}, fmt.Errorf("%w: %s", ErrPostRefMismatch, ref.PostID)
			}
			return found, nil
		}
	}
	return postLocation{}, fmt.Errorf("%w: %s/%s", ErrPostNotFound, ref.PlanID, ref.PostID)
}

// post returns the post at loc; loc must come from resolve on d.
func (d *Document) post(loc postLocation) *MediaPlanPost {
	return d.MediaPlans[loc.plan].Plan[loc.week].Posts[loc.post]
}

// updatePost copies the path root → plan → week → post and applies fn to
// the copied post.
func updatePost(doc *Document, ref PostRef, fn func(*MediaPlanPost) error) (*Document, error) {
	loc, err := doc.resolve(ref)
	if err != nil {
		return nil, err
	}
	post := *doc.post(loc)
	if err := fn(&post); err != nil {
		return nil, err
	}

	group := *doc.MediaPlans[loc.plan]
	week := *group.Plan[loc.week]
	week.Posts = slices.Clone(week.Posts)
	week.Posts[loc.post] = &post
	group.Plan = slices.Clone(group.Plan)
	group.Plan[loc.week] = &week

	next := *doc
	next.MediaPlans = slices.Clone(doc.MediaPlans)
	next.MediaPlans[loc.plan] = &group
	return &next, nil
}

func updatePlan(doc *Document, planID string, fn func(*MediaPlanGroup) error) (*Document, error) {
	gi := doc.planIndex(planID)
	if gi < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	group := *doc.MediaPlans[gi]
	if err := fn(&group); err != nil {
		return nil, err
	}
	next := *doc
	next.MediaPlans = slices.Clone(doc.MediaPlans)
	next.MediaPlans[gi] = &group
	return &next, nil
}

func upsertPlan(doc *Document, g *MediaPlanGroup) (*Document, error) {
	if g == nil || strings.TrimSpace(g.ID) == "" {
		return nil, ErrMissingID
	}
	seen := make(map[string]struct{})
	for _, week := range g.Plan {
		if week == nil {
			continue
		}
		for _, post := range week.Posts {
			if post == nil || post.ID == "" {
				continue
			}
			if _, dup := seen[post.ID]; dup {
				return nil, fmt.Errorf("%w: post %s in plan %s", ErrDuplicateID, post.ID, g.ID)
			}
			seen[post.ID] = struct{}{}
		}
	}
	group := g.clone()
	next := *doc
	if gi := doc.planIndex(g.ID); gi >= 0 {
		next.MediaPlans = slices.Clone(doc.MediaPlans)
		next.MediaPlans[gi] = group
	} else {
		next.MediaPlans = append(slices.Clip(doc.MediaPlans), group)
	}
	return &next, nil
}

func deletePlan(doc *Document, planID string) *Document {
	gi := doc.planIndex(planID)
	if gi < 0 {
		return doc
	}
	var images, videos []string
	for _, week := range doc.MediaPlans[gi].Plan {
		if week == nil {
			continue
		}
		for _, post := range week.Posts {
			images, videos = appendMediaKeys(images, videos, post)
		}
	}
	next := *doc
	next.MediaPlans = slices.Delete(slices.Clone(doc.MediaPlans), gi, gi+1)
	if len(next.MediaPlans) == 0 {
		next.MediaPlans = nil
	}
	next.GeneratedImages = dropMediaKeys(doc.GeneratedImages, images)
	next.GeneratedVideos = dropMediaKeys(doc.GeneratedVideos, videos)
	return &next
}

func deletePost(doc *Document, ref PostRef) (*Document, error) {
	loc, err := doc.resolve(ref)
	if err != nil {
		return nil, err
	}
	images, videos := appendMediaKeys(nil, nil, doc.post(loc))

	group := *doc.MediaPlans[loc.plan]
	week := *group.Plan[loc.week]
	week.Posts = slices.Delete(slices.Clone(week.Posts), loc.post, loc.post+1)
	group.Plan = slices.Clone(group.Plan)
	group.Plan[loc.week] = &week

	next := *doc
	next.MediaPlans = slices.Clone(doc.MediaPlans)
	next.MediaPlans[loc.plan] = &group
	next.GeneratedImages = dropMediaKeys(doc.GeneratedImages, images)
	next.GeneratedVideos = dropMediaKeys(doc.GeneratedVideos, videos)
	return &next, nil
}

func deletePersona(doc *Document, personaID string) *Document {
	list, ok := removeByID(doc.Personas, func(p Persona) bool { return p.ID == personaID })
	if !ok {
		return doc
	}
	next := *doc
	next.Personas = list
	cloned := false
	for gi, g := range doc.MediaPlans {
		if g == nil || g.PersonaID != personaID {
			continue
		}
		if !cloned {
			next.MediaPlans = slices.Clone(doc.MediaPlans)
			cloned = true
		}
		group := *g
		group.PersonaID = ""
		next.MediaPlans[gi] = &group
	}
	return &next
}

func deleteAffiliateLinks(doc *Document, ids []string) *Document {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	dropped := func(id string) bool {
		_, hit := drop[id]
		return hit
	}
	list, ok := removeByID(doc.AffiliateLinks, func(l AffiliateLink) bool { return dropped(l.ID) })
	if !ok {
		return doc
	}
	next := *doc
	next.AffiliateLinks = list

	cur := &next
	for _, g := range doc.MediaPlans {
		if g == nil {
			continue
		}
		for wi, w := range g.Plan {
			if w == nil {
				continue
			}
			for pi, p := range w.Posts {
				if p == nil || !slices.ContainsFunc(p.PromotedProductIDs, dropped) {
					continue
				}
				updated, err := updatePost(cur, At(g.ID, wi, pi), func(dst *MediaPlanPost) error {
					dst.PromotedProductIDs = slices.DeleteFunc(slices.Clone(dst.PromotedProductIDs), dropped)
					if len(dst.PromotedProductIDs) == 0 {
						dst.PromotedProductIDs = nil
					}
					return nil
				})
				if err == nil {
					cur = updated
				}
			}
		}
	}
	return cur
}

// upsertByID replaces items whose id is already present in place and
// prepends new ones in batch order. Within a batch the last entry for an id
// wins.
func upsertByID[T any](list, items []T, id func(T) string) ([]T, error) {
	if len(items) == 0 {
		return list, nil
	}
	index := make(map[string]int, len(list))
	for i, v := range list {
		index[id(v)] = i
	}
	out := slices.Clone(list)
	var fresh []T
	freshIndex := make(map[string]int)
	for _, item := range items {
		key := id(item)
		if strings.TrimSpace(key) == "" {
			return nil, ErrMissingID
		}
		if i, ok := index[key]; ok {
			out[i] = item
			continue
		}
		if i, ok := freshIndex[key]; ok {
			fresh[i] = item
			continue
		}
		freshIndex[key] = len(fresh)
		fresh = append(fresh, item)
	}
	if len(fresh) == 0 {
		return out, nil
	}
	return append(fresh, out...), nil
}

func removeByID[T any](list []T, match func(T) bool) ([]T, bool) {
	if !slices.ContainsFunc(list, match) {
		return list, false
	}
	out := slices.DeleteFunc(slices.Clone(list), match)
	if len(out) == 0 {
		return nil, true
	}
	return out, true
}

func appendMediaKeys(images, videos []string, p *MediaPlanPost) ([]string, []string) {
	if p == nil {
		return images, videos
	}
	if p.ImageKey != "" {
		images = append(images, p.ImageKey)
	}
	for _, k := range p.ImageKeys {
		if k != "" {
			images = append(images, k)
		}
	}
	if p.VideoKey != "" {
		videos = append(videos, p.VideoKey)
	}
	return images, videos
}

// setMediaKey returns a copy of m with key set, or removed when url is empty.
func setMediaKey(m map[string]string, key, url string) map[string]string {
	if url == "" {
		return dropMediaKeys(m, []string{key})
	}
	out := maps.Clone(m)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[key] = url
	return out
}

// dropMediaKeys returns m itself when none of keys is present.
func dropMediaKeys(m map[string]string, keys []string) map[string]string {
	hit := false
	for _, k := range keys {
		if _, ok := m[k]; ok {
			hit = true
			break
		}
	}
	if !hit {
		return m
	}
	out := maps.Clone(m)
	for _, k := range keys {
		delete(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
