package assets

import (
	"errors"
	"slices"
)

var ErrNoCompensation = errors.New("action has no compensating action")

// Compensate returns the action that, applied after a, restores the fields
// a touches to their values in doc. doc is the document a will be applied
// to. References in the returned action are pinned to the resolved post so
// the compensation keeps targeting it.
func Compensate(doc *Document, a Action) (Action, error) {
	if doc == nil {
		doc = &Document{}
	}
	switch a := a.(type) {
	case UpdatePost:
		ref, post, err := pin(doc, a.Ref)
		if err != nil {
			return nil, err
		}
		return UpdatePost{Ref: ref, Fields: a.Fields.previous(post)}, nil
	case SetPostImage:
		ref, post, err := pin(doc, a.Ref)
		if err != nil {
			return nil, err
		}
		return SetPostImage{Ref: ref, ImageURL: post.ImageURL, ImageKey: post.ImageKey}, nil
	case SchedulePost:
		return compensateSchedule(doc, a)
	case BulkSchedulePosts:
		items := make([]SchedulePost, 0, len(a.Items))
		for _, item := range a.Items {
			undo, err := compensateSchedule(doc, item)
			if err != nil {
				return nil, err
			}
			items = append(items, undo)
		}
		return BulkSchedulePosts{Items: items}, nil
	case SetGeneratedImage:
		return SetGeneratedImage{Key: a.Key, URL: doc.GeneratedImages[a.Key]}, nil
	case AssignPersonaToPlan:
		g, ok := doc.Plan(a.PlanID)
		if !ok {
			return nil, ErrPlanNotFound
		}
		return AssignPersonaToPlan{PlanID: a.PlanID, PersonaID: g.PersonaID}, nil
	}
	return nil, ErrNoCompensation
}

func compensateSchedule(doc *Document, a SchedulePost) (SchedulePost, error) {
	ref, post, err := pin(doc, a.Ref)
	if err != nil {
		return SchedulePost{}, err
	}
	undo := SchedulePost{Ref: ref}
	if post.ScheduledAt != nil {
		at := *post.ScheduledAt
		undo.ScheduledAt = &at
	}
	return undo, nil
}

// pin resolves ref and returns a reference that keeps naming the same post
// after unrelated edits: by id when the post has one, since siblings may be
// inserted or deleted in the meantime, and by coordinate otherwise.
func pin(doc *Document, ref PostRef) (PostRef, *MediaPlanPost, error) {
	loc, err := doc.resolve(ref)
	if err != nil {
		return PostRef{}, nil, err
	}
	post := doc.post(loc)
	if post.ID != "" {
		return ByID(ref.PlanID, post.ID), post, nil
	}
	return At(ref.PlanID, loc.week, loc.post), post, nil
}

// previous returns fields holding post's current values for every field f
// sets.
func (f PostFields) previous(post *MediaPlanPost) PostFields {
	var out PostFields
	take := func(set *string, cur string) *string {
		if set == nil {
			return nil
		}
		return &cur
	}
	out.Platform = take(f.Platform, post.Platform)
	out.ContentType = take(f.ContentType, post.ContentType)
	out.Title = take(f.Title, post.Title)
	out.Content = take(f.Content, post.Content)
	out.CTA = take(f.CTA, post.CTA)
	out.MediaPrompt = take(f.MediaPrompt, post.MediaPrompt)
	out.ImageURL = take(f.ImageURL, post.ImageURL)
	out.ImageKey = take(f.ImageKey, post.ImageKey)
	out.VideoURL = take(f.VideoURL, post.VideoURL)
	out.VideoKey = take(f.VideoKey, post.VideoKey)
	out.Status = take(f.Status, post.Status)
	if f.Hashtags != nil {
		prev := slices.Clone(post.Hashtags)
		out.Hashtags = &prev
	}
	if f.PromotedProductIDs != nil {
		prev := slices.Clone(post.PromotedProductIDs)
		out.PromotedProductIDs = &prev
	}
	return out
}
