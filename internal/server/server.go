package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/engine/auth"
	"taskdesk/internal/logging"
	"taskdesk/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	// Roles resolves stored roles; defaults to the engine's role table.
	Roles auth.RoleResolver
	Log   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"request 42 is DRAFT, expected one of [SUBMITTED]."`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type handlers struct {
	e     engine.Engine
	roles auth.RoleResolver
}

func (a handlers) actor(ctx context.Context) (domain.Actor, huma.StatusError) {
	return actorFromContext(ctx, a.roles)
}

// New returns an HTTP handler exposing the taskdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	roles := cfg.Roles
	if roles == nil {
		roles = cfg.Engine.Auth
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
		code := ""
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// schema validation is reported like any other bad input
			status = http.StatusBadRequest
			code = "bad_request"
			if hctx != nil {
				msg = localize(hctx.Context(), code, nil)
			}
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, code, msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withLanguage(r.Context(), r)))
		})
	})
	router.Use(logging.Middleware(log))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Taskdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	hapi := humachi.New(router, hcfg)
	group := huma.NewGroup(hapi, basePath)

	a := handlers{e: cfg.Engine, roles: roles}
	registerDocs(router, basePath)
	registerHealth(group)
	a.registerRequests(group)
	a.registerTransitions(group)
	a.registerLedger(group)
	a.registerCategories(group)
	a.registerStats(group)
	a.registerEvents(group)
	a.registerActors(group)
	registerOpenAPI(router, hapi, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden",
			localize(ctx, "forbidden", map[string]any{"Action": fe.Action}),
			map[string]any{"action": fe.Action})
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "invalid_field",
			localize(ctx, "invalid_field", map[string]any{"Field": ve.Field, "Reason": ve.Reason}),
			map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found",
			localize(ctx, "not_found", map[string]any{"Entity": nf.Entity, "ID": nf.ID}),
			map[string]any{"entity": nf.Entity, "id": nf.ID})
	}
	if errors.Is(err, domain.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", localize(ctx, "not_found_generic", nil), nil)
	}
	var ise *domain.InvalidStateError
	if errors.As(err, &ise) {
		details := map[string]any{"entity": ise.Entity, "id": ise.ID}
		data := map[string]any{"Entity": ise.Entity, "ID": ise.ID, "Actual": ise.Actual, "Expected": ise.Expected, "Reason": ise.Reason}
		msgID := "invalid_state"
		if ise.Reason != "" {
			msgID = "invalid_state_reason"
			details["reason"] = ise.Reason
		} else {
			details["actual"] = ise.Actual
			details["expected"] = ise.Expected
		}
		return newAPIError(http.StatusConflict, "invalid_state", localize(ctx, msgID, data), details)
	}
	zap.L().Error("unhandled api error", zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "internal_error", localize(ctx, "internal_error", nil), nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
		err  error
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, err = json.Marshal(oas)
		})
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", localize(r.Context(), "internal_error", nil), nil))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	return []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace}
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Taskdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

type healthOutput struct {
	Body map[string]string
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: map[string]string{"status": "ok"}}, nil
	})
}

type requestOutput struct {
	Body RequestResponse
}

type requestPath struct {
	ID string `path:"id"`
}

func (a handlers) registerRequests(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID:   "create-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Create request",
		Tags:          []string{"requests"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateRequestBody
	}) (*requestOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := a.e.CreateRequest(ctx, actor, engine.CreateRequestOptions{
			Title:             input.Body.Title,
			Description:       input.Body.Description,
			CategoryID:        input.Body.CategoryID,
			Priority:          domain.Priority(input.Body.Priority),
			DueDate:           input.Body.DueDate,
			Notes:             input.Body.Notes,
			SubmitImmediately: input.Body.Submit,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &requestOutput{Body: requestResponse(actor, t)}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests, newest first",
		Tags:        []string{"requests"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		RequesterID string `query:"requester_id"`
		AssignerID  string `query:"assigner_id"`
		CategoryID  string `query:"category_id"`
		Limit       int    `query:"limit" default:"50"`
		Cursor      string `query:"cursor"`
	}) (*struct {
		Body paginatedRequests
	}, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, handleError(ctx, domain.Invalid("cursor", err.Error()))
		}
		limit := normalizeLimit(input.Limit)
		items, err := a.e.ListRequests(ctx, repo.RequestFilters{
			Status:            domain.Status(strings.ToUpper(input.Status)),
			RequesterID:       input.RequesterID,
			AssignerID:        input.AssignerID,
			CategoryID:        input.CategoryID,
			Limit:             limit + 1,
			CursorRequestDate: cursorTS,
			CursorID:          cursorID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedRequests{Items: []RequestResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(repo.FormatCursorTime(last.RequestDate), last.ID)
			items = items[:limit]
		}
		for _, t := range items {
			resp.Items = append(resp.Items, requestResponse(actor, t))
		}
		return &struct {
			Body paginatedRequests
		}{Body: resp}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{id}",
		Summary:     "Get request with comments and attachments",
		Tags:        []string{"requests"},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *requestPath) (*requestOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := a.e.GetRequest(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &requestOutput{Body: requestResponse(actor, t)}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "update-request",
		Method:      http.MethodPatch,
		Path:        "/requests/{id}",
		Summary:     "Update request fields",
		Tags:        []string{"requests"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateRequestBody
	}) (*requestOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.UpdateRequestOptions{
			ID:           input.ID,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			CategoryID:   input.Body.CategoryID,
			DueDate:      input.Body.DueDate,
			ClearDueDate: input.Body.ClearDueDate,
			Notes:        input.Body.Notes,
			Submit:       input.Body.Submit,
		}
		if input.Body.Priority != nil {
			p := domain.Priority(*input.Body.Priority)
			opts.Priority = &p
		}
		t, err := a.e.UpdateRequest(ctx, actor, opts)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &requestOutput{Body: requestResponse(actor, t)}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "delete-request",
		Method:        http.MethodDelete,
		Path:          "/requests/{id}",
		Summary:       "Delete request",
		Tags:          []string{"requests"},
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *requestPath) (*struct{}, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.e.DeleteRequest(ctx, actor, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

// registerTransitions exposes one POST per row of the transition table.
func (a handlers) registerTransitions(group huma.API) {
	for _, rule := range auth.Transitions() {
		name := rule.Name
		huma.Register(group, huma.Operation{
			OperationID: string(name) + "-request",
			Method:      http.MethodPost,
			Path:        "/requests/{id}/" + string(name),
			Summary:     fmt.Sprintf("Move request to %s", rule.To),
			Tags:        []string{"requests"},
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *requestPath) (*requestOutput, error) {
			actor, authErr := a.actor(ctx)
			if authErr != nil {
				return nil, authErr
			}
			t, err := a.e.Transition(ctx, actor, input.ID, name)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			return &requestOutput{Body: requestResponse(actor, t)}, nil
		})
	}
}

func (a handlers) registerLedger(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/requests/{id}/comments",
		Summary:       "Append a comment",
		Tags:          []string{"ledger"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CommentBody
	}) (*requestOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := a.e.AddComment(ctx, actor, input.ID, input.Body.Content)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &requestOutput{Body: requestResponse(actor, t)}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "add-attachment",
		Method:        http.MethodPost,
		Path:          "/requests/{id}/attachments",
		Summary:       "Record attachment metadata",
		Tags:          []string{"ledger"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body AttachmentBody
	}) (*requestOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := a.e.AddAttachment(ctx, actor, input.ID, engine.AttachmentInput{
			FileName: input.Body.FileName,
			Metadata: domain.FileMetadata{
				ContentType: input.Body.ContentType,
				Size:        input.Body.Size,
				StorageRef:  input.Body.StorageRef,
			},
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &requestOutput{Body: requestResponse(actor, t)}, nil
	})
}

type categoryOutput struct {
	Body domain.Category
}

func (a handlers) registerCategories(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List categories",
		Tags:        []string{"categories"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Category
	}, error) {
		if _, authErr := a.actor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := a.e.ListCategories(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.Category
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "get-category",
		Method:      http.MethodGet,
		Path:        "/categories/{id}",
		Summary:     "Get category",
		Tags:        []string{"categories"},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *requestPath) (*categoryOutput, error) {
		if _, authErr := a.actor(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := a.e.GetCategory(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &categoryOutput{Body: c}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create category",
		Tags:          []string{"categories"},
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CategoryBody
	}) (*categoryOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := a.e.CreateCategory(ctx, actor, engine.CategoryInput{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Color:       input.Body.Color,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &categoryOutput{Body: c}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "update-category",
		Method:      http.MethodPatch,
		Path:        "/categories/{id}",
		Summary:     "Update category",
		Tags:        []string{"categories"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CategoryPatchBody
	}) (*categoryOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := a.e.UpdateCategory(ctx, actor, input.ID, engine.CategoryPatch{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Color:       input.Body.Color,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &categoryOutput{Body: c}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "set-default-category",
		Method:      http.MethodPost,
		Path:        "/categories/{id}/default",
		Summary:     "Make category the default",
		Tags:        []string{"categories"},
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *requestPath) (*categoryOutput, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := a.e.SetDefaultCategory(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &categoryOutput{Body: c}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "delete-category",
		Method:        http.MethodDelete,
		Path:          "/categories/{id}",
		Summary:       "Delete category; its requests move to the default",
		Tags:          []string{"categories"},
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *requestPath) (*struct{}, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.e.DeleteCategory(ctx, actor, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func (a handlers) registerStats(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "request-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Request counts by status",
		Tags:        []string{"stats"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		RequesterID string `query:"requester_id"`
		AssignerID  string `query:"assigner_id"`
		CategoryID  string `query:"category_id"`
	}) (*struct {
		Body StatsResponse
	}, error) {
		if _, authErr := a.actor(ctx); authErr != nil {
			return nil, authErr
		}
		counts, err := a.e.StatusCounts(ctx, repo.RequestFilters{
			RequesterID: input.RequesterID,
			AssignerID:  input.AssignerID,
			CategoryID:  input.CategoryID,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		return &struct {
			Body StatsResponse
		}{Body: StatsResponse{Counts: counts, Total: total}}, nil
	})
}

func (a handlers) registerEvents(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Tags:        []string{"events"},
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEvents
	}, error) {
		if _, authErr := a.actor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := a.e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents
		}{Body: resp}, nil
	})
}

func (a handlers) registerActors(group huma.API) {
	huma.Register(group, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor and effective roles",
		Tags:        []string{"actors"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse
	}, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, _ := principalFromContext(ctx)
		return &struct {
			Body WhoAmIResponse
		}{Body: WhoAmIResponse{ActorID: actor.ID, Roles: nonNilSlice(actor.Roles), Source: p.Source}}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID: "list-actor-roles",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List actors and their stored roles",
		Tags:        []string{"actors"},
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ActorRolesResponse
	}, error) {
		if _, authErr := a.actor(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := a.e.ListActorRoles(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body ActorRolesResponse
		}{Body: ActorRolesResponse{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "grant-role",
		Method:        http.MethodPost,
		Path:          "/actors/{actor_id}/roles",
		Summary:       "Grant role",
		Tags:          []string{"actors"},
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
		Body    RoleGrantBody
	}) (*struct{}, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.e.GrantRole(ctx, actor, input.ActorID, domain.Role(input.Body.Role)); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(group, huma.Operation{
		OperationID:   "revoke-role",
		Method:        http.MethodDelete,
		Path:          "/actors/{actor_id}/roles/{role}",
		Summary:       "Revoke role",
		Tags:          []string{"actors"},
		DefaultStatus: http.StatusNoContent,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
		Role    string `path:"role"`
	}) (*struct{}, error) {
		actor, authErr := a.actor(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := a.e.RevokeRole(ctx, actor, input.ActorID, domain.Role(input.Role)); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
