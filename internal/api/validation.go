package api

import (
	"net/http"
	"strings"
	"sync"
	"unicode"

	"token_ledger/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator:
// walletid (opaque id, no whitespace, at most 64 bytes) and entrykind.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("walletid", func(fl validator.FieldLevel) bool {
			return validWalletID(fl.Field().String())
		})
		_ = v.RegisterValidation("entrykind", func(fl validator.FieldLevel) bool {
			return domain.EntryKind(fl.Field().String()).Valid()
		})
	})
}

func validWalletID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	return strings.IndexFunc(s, unicode.IsSpace) < 0
}

// respondBindError turns binding failures into field-level messages.
func respondBindError(c *gin.Context, err error) {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": CodeInvalidRequest, "message": "Malformed request body"})
		return
	}
	details := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: validationMessage(fe),
		})
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": CodeInvalidRequest, "details": details})
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "walletid":
		return fe.Field() + " must be a wallet id"
	case "entrykind":
		return fe.Field() + " must be a ledger entry kind"
	default:
		return fe.Field() + " is invalid"
	}
}
