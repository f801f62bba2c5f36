package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// decodeAndValidate JSON-decodes r.Body into dst and runs struct-tag
// validation, writing the appropriate error envelope and returning false on
// any failure so the caller can return immediately.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Error(w, r, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			Error(w, r, http.StatusBadRequest, CodeBadRequest, "invalid request")
			return false
		}
		errs := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			errs[fe.Field()] = fe.Tag()
		}
		ValidationError(w, r, errs)
		return false
	}
	return true
}
