package taskruntime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/antoniostano/brandstudio/internal/assets"
	"github.com/antoniostano/brandstudio/internal/tasks"
)

var ErrEmptyResult = errors.New("task result has nothing to apply")

// Dispatcher is the part of assets.Store completion handlers write to.
type Dispatcher interface {
	Dispatch(a assets.Action) (*assets.Document, error)
}

// RegisterAssetCompletions installs the handlers that fold task results
// into the assets document.
func (s *Service) RegisterAssetCompletions(d Dispatcher) {
	for t, h := range AssetCompletions(d) {
		s.RegisterCompletion(t, h)
	}
}

// AssetCompletions maps task types to handlers dispatching the matching
// asset actions. CREATE_BRAND_FROM_IDEA has none: the new brand is loaded
// through the refresh callback.
func AssetCompletions(d Dispatcher) map[tasks.TaskType]CompletionHandler {
	plan := func(ctx context.Context, task tasks.BackgroundTask) error {
		var res struct {
			Group *assets.MediaPlanGroup `mapstructure:"mediaPlanGroup"`
		}
		if err := decodeResult(task.Result, &res); err != nil {
			return err
		}
		if res.Group == nil {
			return ErrEmptyResult
		}
		return dispatch(d, assets.UpsertMediaPlanGroup{Group: res.Group})
	}
	return map[tasks.TaskType]CompletionHandler{
		tasks.TaskTypeGenerateMediaPlan:       plan,
		tasks.TaskTypeGenerateContentPackage:  plan,
		tasks.TaskTypeGenerateFunnelCampaign:  plan,
		tasks.TaskTypeGenerateImage:           imageCompletion(d),
		tasks.TaskTypeGenerateInCharacterPost: inCharacterPostCompletion(d),
		tasks.TaskTypeAutoGeneratePersonas: func(ctx context.Context, task tasks.BackgroundTask) error {
			var res struct {
				Personas []assets.Persona `mapstructure:"personas"`
			}
			if err := decodeResult(task.Result, &res); err != nil {
				return err
			}
			if len(res.Personas) == 0 {
				return ErrEmptyResult
			}
			return dispatch(d, assets.UpsertPersonas{Personas: res.Personas})
		},
		tasks.TaskTypeGenerateTrends: func(ctx context.Context, task tasks.BackgroundTask) error {
			var res struct {
				Trends []assets.Trend `mapstructure:"trends"`
			}
			if err := decodeResult(task.Result, &res); err != nil {
				return err
			}
			if len(res.Trends) == 0 {
				return ErrEmptyResult
			}
			return dispatch(d, assets.UpsertTrends{Trends: res.Trends})
		},
		tasks.TaskTypeGenerateViralIdeas: func(ctx context.Context, task tasks.BackgroundTask) error {
			var res struct {
				Ideas []assets.Idea `mapstructure:"ideas"`
			}
			if err := decodeResult(task.Result, &res); err != nil {
				return err
			}
			if len(res.Ideas) == 0 {
				return ErrEmptyResult
			}
			return dispatch(d, assets.UpsertIdeas{Ideas: res.Ideas})
		},
	}
}

// postTarget is how image and post tasks name the post they were
// generated for, inside the submitted payload.
type postTarget struct {
	PlanID        string `mapstructure:"planId"`
	PostID        string `mapstructure:"postId"`
	WeekIndex     *int   `mapstructure:"weekIndex"`
	PostIndex     *int   `mapstructure:"postIndex"`
	CarouselIndex *int   `mapstructure:"carouselIndex"`
	ImageKey      string `mapstructure:"imageKey"`
}

func (p postTarget) ref() (assets.PostRef, bool) {
	if p.PlanID == "" || (p.PostID == "" && (p.WeekIndex == nil || p.PostIndex == nil)) {
		return assets.PostRef{}, false
	}
	return assets.PostRef{PlanID: p.PlanID, PostID: p.PostID, WeekIndex: p.WeekIndex, PostIndex: p.PostIndex}, true
}

func imageCompletion(d Dispatcher) CompletionHandler {
	return func(ctx context.Context, task tasks.BackgroundTask) error {
		var res struct {
			URL      string `mapstructure:"url"`
			ImageURL string `mapstructure:"imageUrl"`
			ImageKey string `mapstructure:"imageKey"`
		}
		if err := decodeResult(task.Result, &res); err != nil {
			return err
		}
		if res.ImageURL == "" {
			res.ImageURL = res.URL
		}
		if res.ImageURL == "" {
			return ErrEmptyResult
		}

		var target postTarget
		if err := decodeResult(task.Payload, &target); err != nil {
			return err
		}
		// The key is chosen by the caller at submission; results may omit it.
		if res.ImageKey == "" {
			res.ImageKey = target.ImageKey
		}
		if res.ImageKey != "" {
			if err := dispatch(d, assets.SetGeneratedImage{Key: res.ImageKey, URL: res.ImageURL}); err != nil {
				return err
			}
		}

		ref, ok := target.ref()
		if !ok {
			return nil
		}
		if target.CarouselIndex != nil {
			return dispatch(d, assets.SetCarouselImage{
				Ref:      ref,
				Index:    *target.CarouselIndex,
				ImageURL: res.ImageURL,
				ImageKey: res.ImageKey,
			})
		}
		return dispatch(d, assets.SetPostImage{Ref: ref, ImageURL: res.ImageURL, ImageKey: res.ImageKey})
	}
}

func inCharacterPostCompletion(d Dispatcher) CompletionHandler {
	return func(ctx context.Context, task tasks.BackgroundTask) error {
		var res struct {
			Title    string   `mapstructure:"title"`
			Content  string   `mapstructure:"content"`
			Hashtags []string `mapstructure:"hashtags"`
		}
		if err := decodeResult(task.Result, &res); err != nil {
			return err
		}
		var target postTarget
		if err := decodeResult(task.Payload, &target); err != nil {
			return err
		}
		ref, ok := target.ref()
		if !ok || res.Content == "" {
			return ErrEmptyResult
		}
		fields := assets.PostFields{Content: &res.Content}
		if res.Title != "" {
			fields.Title = &res.Title
		}
		if res.Hashtags != nil {
			fields.Hashtags = &res.Hashtags
		}
		return dispatch(d, assets.UpdatePost{Ref: ref, Fields: fields})
	}
}

func dispatch(d Dispatcher, a assets.Action) error {
	if _, err := d.Dispatch(a); err != nil {
		return fmt.Errorf("apply %s: %w", a.Kind(), err)
	}
	return nil
}

// decodeResult decodes a loosely typed result map into out. Numbers may
// arrive as float64 and timestamps as RFC 3339 strings.
func decodeResult(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode task result: %w", err)
	}
	return nil
}
