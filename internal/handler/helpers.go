package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"estoque/internal/apierror"
	"estoque/internal/middleware"
	"estoque/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	// Report field names as clients spell them.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails;
// the caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.KindValidation, "invalid JSON body: "+err.Error()))
		return false
	}
	return runValidator(c, req)
}

// bindQuery is bindAndValidate for query string filters.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.KindValidation, "invalid query: "+err.Error()))
		return false
	}
	return runValidator(c, req)
}

func runValidator(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fieldPath(fe)] = fe.Tag()
			}
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation("", fields))
		return false
	}
	return true
}

// fieldPath strips the root struct name from the namespace, so
// "CreateSaleRequest.items[0].quantity" becomes "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// parseID reads a UUID path parameter, writing a 400 when malformed.
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewValidation("invalid id", map[string]string{param: "uuid"}))
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps domain errors to status codes and the error envelope.
// Anything unclassified is logged and answered with an opaque 500.
func respondError(c *gin.Context, err error) {
	var (
		vErr     *service.ValidationError
		nfErr    *service.NotFoundError
		stockErr *service.InsufficientStockError
		dupErr   *service.DuplicateItemError
		pErr     *service.PersistenceError
		authErr  *service.UnauthorizedError
	)
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(vErr.Msg, vErr.Fields))
	case errors.As(err, &nfErr):
		c.JSON(http.StatusNotFound, apierror.New(apierror.KindNotFound, nfErr.Error()))
	case errors.As(err, &stockErr):
		requested, available := stockErr.Requested, stockErr.Available
		c.JSON(http.StatusConflict, &apierror.APIError{
			Error:     stockErr.Error(),
			Kind:      service.KindInsufficientStock,
			ItemID:    stockErr.ItemID.String(),
			Requested: &requested,
			Available: &available,
		})
	case errors.As(err, &dupErr):
		c.JSON(http.StatusConflict, apierror.New(service.KindDuplicateItem, dupErr.Error()))
	case errors.As(err, &authErr):
		c.JSON(http.StatusUnauthorized, apierror.New(apierror.KindUnauthorized, authErr.Error()))
	case errors.As(err, &pErr):
		log.Error().Err(pErr.Err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("op", pErr.Op).
			Msg("persistence failure")
		c.JSON(http.StatusInternalServerError, apierror.New(service.KindPersistence, "storage failure, nothing was changed"))
	default:
		log.Error().Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, apierror.Internal())
	}
}
