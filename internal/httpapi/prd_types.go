package httpapi

import "github.com/ralphswarm/conductor/internal/prd"

// ValidatePrdRequest is the body of POST /prd/validate (validate_prd, §6).
type ValidatePrdRequest struct {
	PRD prd.PRD `json:"prd" binding:"required"`
}

// CreatePrdSessionRequest is the body of POST /prd/sessions
// (create_prd_session, §6).
type CreatePrdSessionRequest struct {
	PRD   prd.PRD `json:"prd" binding:"required"`
	Start bool    `json:"start"`
}
