package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

// Params are the typed arguments of an action
type Params struct {
	Owner     string
	NumItems  int
	IDs       []string
	ContentID string
}

type requestBody struct {
	Owner    string          `json:"owner"`
	NumItems json.RawMessage `json:"numItems"`
	IDs      []string        `json:"ids"`
	ID       string          `json:"id"`
}

// resolveParams reads path params, the query string and the JSON body.
// A path param wins over a query param, which wins over a body field.
func resolveParams(c *fiber.Ctx) (Params, error) {
	var body requestBody
	if raw := c.Body(); takesBody(c.Method()) && len(strings.TrimSpace(string(raw))) > 0 {
		if err := c.App().Config().JSONDecoder(raw, &body); err != nil {
			return Params{}, fiber.NewError(fiber.StatusBadRequest, "Request body must be a JSON object")
		}
	}

	owner, _ := lo.Coalesce(c.Params("owner"), c.Query("owner"), body.Owner)
	contentID, _ := lo.Coalesce(c.Query("id"), body.ID)

	params := Params{
		Owner:     owner,
		ContentID: contentID,
		IDs:       body.IDs,
	}

	if ids := c.Query("ids"); ids != "" {
		params.IDs = strings.Split(ids, ",")
	}

	raw := c.Query("numItems")
	if raw == "" {
		raw = bodyNumber(body.NumItems)
	}
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Params{}, fiber.NewError(fiber.StatusBadRequest, "numItems must be an integer")
		}
		params.NumItems = n
	}

	if params.NumItems < 0 {
		return Params{}, fiber.NewError(fiber.StatusBadRequest, "numItems must not be negative")
	}

	return params, nil
}

// Only POST and PATCH carry parameters in the body
func takesBody(method string) bool {
	return method == fiber.MethodPost || method == fiber.MethodPatch
}

// bodyNumber returns the text of a JSON number or numeric string. Clients
// bound to text inputs send numItems quoted.
func bodyNumber(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(value); err == nil {
		return strings.TrimSpace(unquoted)
	}
	return value
}
