package pipeline

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"taskdeploy-backend/apperr"
	"taskdeploy-backend/models"
	"taskdeploy-backend/security"
)

// RequiredFields must be present in every task submission.
var RequiredFields = []string{"email", "task", "round", "nonce", "brief", "checks"}

// Gate admits task submissions: shared secret first, then field presence,
// then round. Nothing remote is touched before Admit succeeds.
type Gate struct {
	secret []byte
}

// NewGate builds a Gate for the configured shared secret.
func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// CheckSecret compares a presented secret in constant time.
func (g *Gate) CheckSecret(presented string) error {
	if len(g.secret) == 0 || subtle.ConstantTimeCompare([]byte(presented), g.secret) != 1 {
		return apperr.Auth("Invalid secret")
	}
	return nil
}

// Admit validates a raw JSON object and decodes it into a TaskRequest.
func (g *Gate) Admit(raw map[string]json.RawMessage) (models.TaskRequest, error) {
	var secret string
	if msg, ok := raw["secret"]; ok {
		_ = json.Unmarshal(msg, &secret)
	}
	if err := g.CheckSecret(secret); err != nil {
		return models.TaskRequest{}, err
	}

	var missing []string
	for _, field := range RequiredFields {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return models.TaskRequest{}, apperr.Validation(
			fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")), missing...)
	}

	req := models.TaskRequest{Secret: secret}
	var bad []string
	decode := func(field string, dst interface{}) {
		msg, ok := raw[field]
		if !ok {
			return
		}
		if err := json.Unmarshal(msg, dst); err != nil {
			bad = append(bad, field)
		}
	}
	decode("email", &req.Email)
	decode("task", &req.Task)
	decode("nonce", &req.Nonce)
	decode("brief", &req.Brief)
	decode("checks", &req.Checks)
	decode("attachments", &req.Attachments)
	decode("evaluation_url", &req.EvaluationURL)
	if len(bad) > 0 {
		return models.TaskRequest{}, apperr.Validation(
			fmt.Sprintf("Invalid field types: %s", strings.Join(bad, ", ")), bad...)
	}

	round, ok := parseRound(raw["round"])
	if !ok {
		return models.TaskRequest{}, apperr.InvalidRound(strings.Trim(string(bytes.TrimSpace(raw["round"])), `"`))
	}
	req.Round = round

	if _, err := security.SanitizeProjectName(req.ProjectName()); err != nil {
		return models.TaskRequest{}, apperr.Validation(err.Error(), "task", "nonce")
	}
	return req, nil
}

// ValidateRound rejects rounds other than bootstrap and update.
func ValidateRound(round int) error {
	if round != models.RoundBootstrap && round != models.RoundUpdate {
		return apperr.InvalidRound(round)
	}
	return nil
}

func parseRound(msg json.RawMessage) (int, bool) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	round := int(f)
	if ValidateRound(round) != nil {
		return 0, false
	}
	return round, true
}
