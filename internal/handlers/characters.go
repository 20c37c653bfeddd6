package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"character-sync/internal/middleware"
	"character-sync/internal/models"
	"character-sync/internal/normalizer"
	"character-sync/pkg/errors"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionHeader carries the provider session token on external routes.
const SessionHeader = "X-External-Session"

const maxBodyBytes = 1 << 20

// CharacterService is the pipeline the handlers drive.
type CharacterService interface {
	Login(ctx context.Context, identifier, password string) (*models.ExternalAuth, error)
	LinkAccount(ctx context.Context, userID, identifier, password string) (*models.ExternalAuth, error)
	ListCharacters(ctx context.Context, sessionToken string) (*models.CharacterListing, error)
	ImportCharacter(ctx context.Context, localAccountID, sessionToken, externalID string) (*models.Character, error)
	SyncCharacter(ctx context.Context, record *models.Character) (*models.Character, error)
	ImportFromShareKey(ctx context.Context, shareKey string) (*models.DecodedCharacter, error)
}

// CharacterFinder loads local character records.
type CharacterFinder interface {
	GetCharacterByID(ctx context.Context, id string) (*models.Character, error)
}

// CharacterHandler handles the external character routes
type CharacterHandler struct {
	service CharacterService
	finder  CharacterFinder
	logger  *zap.Logger
}

// NewCharacterHandler creates a new character handler
func NewCharacterHandler(service CharacterService, finder CharacterFinder, logger *zap.Logger) *CharacterHandler {
	return &CharacterHandler{
		service: service,
		finder:  finder,
		logger:  logger,
	}
}

// HandleLogin handles POST /v1/external/login
// @Summary     Log in to the character provider
// @Description Opens a provider session. The identifier is tried as a username, then as an e-mail address. With remember=true the credentials are stored encrypted for later syncs.
// @Tags        external
// @Accept      application/json
// @Produce     application/json
// @Security    BearerAuth
// @Param       request body     models.LoginRequest true "Provider credentials"
// @Success     200     {object} models.LoginResponse
// @Failure     400     {object} models.ErrorResponse
// @Failure     401     {object} models.ErrorResponse
// @Failure     429     {object} models.ErrorResponse
// @Failure     502     {object} models.ErrorResponse
// @Router      /v1/external/login [post]
func (h *CharacterHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.sendError(w, err)
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		h.sendError(w, errors.WithReason(errors.ErrInvalidRequest, "identifier and password are required"))
		return
	}

	var (
		session *models.ExternalAuth
		err     error
	)
	if req.Remember {
		userID, ok := middleware.UserIDFromContext(ctx)
		if !ok {
			h.sendError(w, errors.ErrUnauthorized)
			return
		}
		session, err = h.service.LinkAccount(ctx, userID, req.Identifier, req.Password)
	} else {
		session, err = h.service.Login(ctx, req.Identifier, req.Password)
	}
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.sendJSON(w, http.StatusOK, &models.LoginResponse{
		ExternalAccountID: session.ExternalAccountID,
		SessionToken:      session.SessionToken,
		Remembered:        req.Remember,
	})
}

// HandleList handles GET /v1/external/characters
// @Summary     List provider characters
// @Description Lists the character and campaign records of the session's account. Unreadable records are reported under skipped.
// @Tags        external
// @Produce     application/json
// @Security    BearerAuth
// @Param       X-External-Session header   string true "Provider session token"
// @Success     200                {object} models.CharacterListing
// @Failure     400                {object} models.ErrorResponse
// @Failure     401                {object} models.ErrorResponse
// @Failure     502                {object} models.ErrorResponse
// @Router      /v1/external/characters [get]
func (h *CharacterHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	token, ok := sessionToken(r)
	if !ok {
		h.sendError(w, errors.WithReason(errors.ErrInvalidRequest, SessionHeader+" header is required"))
		return
	}

	listing, err := h.service.ListCharacters(r.Context(), token)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, listing)
}

// HandleImport handles POST /v1/external/characters/{external_id}/import
// @Summary     Import a provider character
// @Description Imports one record into the caller's account, or updates the record previously imported from it.
// @Tags        external
// @Produce     application/json
// @Security    BearerAuth
// @Param       external_id        path     string true "Record key, e.g. character3"
// @Param       X-External-Session header   string true "Provider session token"
// @Success     200                {object} models.Character
// @Failure     400                {object} models.ErrorResponse
// @Failure     401                {object} models.ErrorResponse
// @Failure     404                {object} models.ErrorResponse
// @Failure     422                {object} models.ErrorResponse
// @Failure     502                {object} models.ErrorResponse
// @Router      /v1/external/characters/{external_id}/import [post]
func (h *CharacterHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		h.sendError(w, errors.ErrUnauthorized)
		return
	}
	token, ok := sessionToken(r)
	if !ok {
		h.sendError(w, errors.WithReason(errors.ErrInvalidRequest, SessionHeader+" header is required"))
		return
	}
	externalID := mux.Vars(r)["external_id"]
	if externalID == "" {
		h.sendError(w, errors.ErrInvalidRequest)
		return
	}

	character, err := h.service.ImportCharacter(ctx, userID, token, externalID)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, character)
}

// HandleSync handles POST /v1/characters/{id}/sync
// @Summary     Sync an imported character
// @Description Pulls the latest version of an imported character. An expired provider session is refreshed once with the stored credentials.
// @Tags        characters
// @Produce     application/json
// @Security    BearerAuth
// @Param       id  path     string true "Local character id"
// @Success     200 {object} models.Character
// @Failure     400 {object} models.ErrorResponse
// @Failure     401 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /v1/characters/{id}/sync [post]
func (h *CharacterHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserIDFromContext(ctx)
	if !ok {
		h.sendError(w, errors.ErrUnauthorized)
		return
	}
	id := mux.Vars(r)["id"]

	record, err := h.finder.GetCharacterByID(ctx, id)
	if err != nil {
		h.sendError(w, err)
		return
	}
	if record == nil || record.UserID != userID {
		h.sendError(w, errors.ErrNotFound)
		return
	}

	synced, err := h.service.SyncCharacter(ctx, record)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, synced)
}

// HandleShareImport handles POST /v1/share/import
// @Summary     Read a shared character
// @Description Reads a publicly shared record through an anonymous provider session and returns it with its normalized sheet. Nothing is stored.
// @Tags        share
// @Accept      application/json
// @Produce     application/json
// @Security    BearerAuth
// @Param       request body     models.ShareImportRequest true "Share key"
// @Success     200     {object} models.SharePreview
// @Failure     400     {object} models.ErrorResponse
// @Failure     404     {object} models.ErrorResponse
// @Failure     422     {object} models.ErrorResponse
// @Failure     502     {object} models.ErrorResponse
// @Router      /v1/share/import [post]
func (h *CharacterHandler) HandleShareImport(w http.ResponseWriter, r *http.Request) {
	var req models.ShareImportRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.sendError(w, err)
		return
	}

	decoded, err := h.service.ImportFromShareKey(r.Context(), req.ShareKey)
	if err != nil {
		h.sendError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, &models.SharePreview{
		Character: *decoded,
		Sheet:     normalizer.Normalize(decoded.Data),
	})
}

func sessionToken(r *http.Request) (string, bool) {
	token := strings.TrimSpace(r.Header.Get(SessionHeader))
	return token, token != ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, errors.WithReason(errors.ErrInvalidRequest, "malformed JSON body"))
	}
	return nil
}

func (h *CharacterHandler) sendError(w http.ResponseWriter, err error) {
	se := errors.As(err)
	if se.Status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("code", se.Code), zap.Error(err))
	}
	middleware.WriteError(w, err)
}

func (h *CharacterHandler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
