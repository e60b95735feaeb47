package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"bixquest/internal/interfaces"
	"bixquest/internal/models"
	"bixquest/internal/pkg/limiter"
	"bixquest/internal/services"

	"github.com/go-redis/redis_rate/v10"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

const (
	actionCheckin         = "checkin"
	actionCompleteTask    = "complete_task"
	actionRedeemCode      = "redeem_code"
	actionStartQuiz       = "start_quiz"
	actionAnswerQuiz      = "answer_quiz"
	actionFinishQuiz      = "finish_quiz"
	actionProcessReferral = "process_referral"
	actionSpinWheel       = "spin_wheel"
	actionMe              = "me"
	actionHistory         = "history"
	actionGenerateCode    = "generate_code"
	actionListCodes       = "list_codes"
	actionDisableCode     = "disable_code"
	actionGetMetrics      = "get_metrics"
	actionListFlags       = "list_flags"
	actionResolveFlag     = "resolve_flag"
)

const (
	defaultActionsPerMinute = 10
	answersPerMinute        = 30
	redeemsPerIPPerMinute   = 5
)

type groupEngine struct {
	container *do.Injector
}

var adminActions = map[string]bool{
	actionGenerateCode: true,
	actionListCodes:    true,
	actionDisableCode:  true,
	actionGetMetrics:   true,
	actionListFlags:    true,
	actionResolveFlag:  true,
}

type envelope struct {
	Action string `json:"action"`
}

// requestMeta carries the abuse signals extracted from the request.
type requestMeta struct {
	IPHash     string
	DeviceHash string
	UserAgent  string
}

func (gr *groupEngine) Dispatch(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<16))
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Validation))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Action == "" {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("missing action"), errorx.Validation))
	}

	if adminActions[env.Action] && !user.IsAdmin() {
		return c.JSON(http.StatusForbidden, map[string]any{"error": services.ErrAdminOnly.Error()})
	}

	meta := extractMeta(c)

	lockout, err := do.Invoke[interfaces.FailureTracker](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}
	if lockout.IsLockedOut(ctx, services.RateKeyAction(user.ID, "all")) {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("too many failed attempts"), errorx.RateLimiting))
	}

	if err := gr.rateLimit(c, user, env.Action, meta); err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	// settle anything matured before handling the action itself
	serviceReferral, err := do.Invoke[*services.ServiceReferral](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}
	if err := serviceReferral.SweepUser(ctx, user.ID); err != nil {
		log.Println("SweepUser error:", err, "user:", user.ID)
	}

	result, err := gr.handle(c, user, env.Action, body, meta)
	if err != nil {
		lockout.Fail(ctx, services.RateKeyAction(user.ID, "all"))
		return httpx.RestAbort(c, nil, err)
	}

	return httpx.RestAbort(c, result, nil)
}

func (gr *groupEngine) rateLimit(c echo.Context, user *models.User, action string, meta requestMeta) error {
	ctx := c.Request().Context()

	rate, err := do.Invoke[interfaces.Limiter](gr.container)
	if err != nil {
		return errorx.Wrap(err, errorx.Service)
	}

	quota := defaultActionsPerMinute
	if action == actionAnswerQuiz {
		quota = answersPerMinute
	}
	if err := rate.Allow(ctx, services.RateKeyAction(user.ID, action), redis_rate.PerMinute(quota)); err != nil {
		if errors.Is(err, limiter.ErrRateLimited) {
			return errorx.Wrap(err, errorx.RateLimiting)
		}
		return errorx.Wrap(err, errorx.Service)
	}

	if action == actionRedeemCode && meta.IPHash != "" {
		if err := rate.Allow(ctx, services.RateKeyRedeemIP(meta.IPHash), redis_rate.PerMinute(redeemsPerIPPerMinute)); err != nil {
			if errors.Is(err, limiter.ErrRateLimited) {
				return errorx.Wrap(err, errorx.RateLimiting)
			}
			return errorx.Wrap(err, errorx.Service)
		}
	}

	return nil
}

func (gr *groupEngine) handle(c echo.Context, user *models.User, action string, body []byte, meta requestMeta) (any, error) {
	ctx := c.Request().Context()

	switch action {
	case actionCheckin:
		service, err := do.Invoke[*services.ServiceCheckin](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.Checkin(ctx, user, meta.IPHash)

	case actionCompleteTask:
		var cmd struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil || cmd.TaskID == "" {
			return nil, errorx.Wrap(errors.New("missing task_id"), errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceTask](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.CompleteTask(ctx, user, cmd.TaskID, meta.IPHash)

	case actionRedeemCode:
		var cmd struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(errors.New("missing code"), errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceCode](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.RedeemCode(ctx, user, cmd.Code, meta.IPHash, meta.DeviceHash, meta.UserAgent)

	case actionStartQuiz:
		var cmd struct {
			QuestionCount int    `json:"question_count"`
			Difficulty    string `json:"difficulty"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceQuiz](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.StartQuiz(ctx, user, cmd.QuestionCount, models.QuizDifficulty(cmd.Difficulty))

	case actionAnswerQuiz:
		var cmd struct {
			SessionID      string  `json:"session_id"`
			QuestionID     int64   `json:"question_id"`
			SelectedOption int     `json:"selected_option"`
			TimeTaken      float64 `json:"time_taken"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceQuiz](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.Answer(ctx, user, cmd.SessionID, cmd.QuestionID, cmd.SelectedOption, cmd.TimeTaken)

	case actionFinishQuiz:
		var cmd struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceQuiz](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.Finish(ctx, user, cmd.SessionID, meta.IPHash)

	case actionProcessReferral:
		var cmd struct {
			RefCode string `json:"ref_code"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceReferral](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.ProcessReferral(ctx, user, cmd.RefCode, meta.IPHash)

	case actionSpinWheel:
		var cmd struct {
			Stake int64 `json:"stake"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceWheel](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.Spin(ctx, user, cmd.Stake, meta.IPHash)

	case actionMe:
		service, err := do.Invoke[*services.ServiceUser](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.Me(ctx, user)

	case actionHistory:
		var cmd struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceLedger](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.History(ctx, user.ID, cmd.Limit)

	case actionGenerateCode:
		var cmd struct {
			TaskID         string `json:"task_id"`
			ValidHours     int    `json:"valid_hours"`
			MaxRedemptions *int   `json:"max_redemptions"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceCode](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.GenerateWindow(ctx, user, cmd.TaskID, cmd.ValidHours, cmd.MaxRedemptions)

	case actionListCodes:
		var cmd struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceCode](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.ListWindows(ctx, user, cmd.Limit)

	case actionDisableCode:
		var cmd struct {
			WindowID string `json:"window_id"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil || cmd.WindowID == "" {
			return nil, errorx.Wrap(errors.New("missing window_id"), errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceCode](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		if err := service.DisableWindow(ctx, user, cmd.WindowID); err != nil {
			return nil, err
		}
		return map[string]any{"disabled": cmd.WindowID}, nil

	case actionGetMetrics:
		var cmd struct {
			Days int `json:"days"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceMetrics](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.GetMetrics(ctx, cmd.Days)

	case actionListFlags:
		var cmd struct {
			Limit int `json:"limit"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil {
			return nil, errorx.Wrap(err, errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceFraud](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		return service.ListFlags(ctx, user, cmd.Limit)

	case actionResolveFlag:
		var cmd struct {
			FlagID int64 `json:"flag_id"`
		}
		if err := json.Unmarshal(body, &cmd); err != nil || cmd.FlagID == 0 {
			return nil, errorx.Wrap(errors.New("missing flag_id"), errorx.Validation)
		}
		service, err := do.Invoke[*services.ServiceFraud](gr.container)
		if err != nil {
			return nil, errorx.Wrap(err, errorx.Service)
		}
		if err := service.ResolveFlag(ctx, user, cmd.FlagID); err != nil {
			return nil, err
		}
		return map[string]any{"resolved": cmd.FlagID}, nil

	default:
		return nil, errorx.Wrap(fmt.Errorf("unknown action %q", action), errorx.Validation)
	}
}

func extractMeta(c echo.Context) requestMeta {
	ip := c.Request().Header.Get("cf-connecting-ip")
	if ip == "" {
		forwarded := c.Request().Header.Get("x-forwarded-for")
		if forwarded != "" {
			ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
		}
	}
	if ip == "" {
		ip = c.RealIP()
	}

	meta := requestMeta{UserAgent: c.Request().UserAgent()}
	if ip != "" {
		meta.IPHash = shortHash(ip)
	}
	if device := c.Request().Header.Get("x-device-hash"); device != "" {
		meta.DeviceHash = shortHash(device)
	}
	return meta
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
