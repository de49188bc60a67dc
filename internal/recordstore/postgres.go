package recordstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "license-verification/internal/common/errors"
	"license-verification/internal/models"
)

// Schema creates the table PostgresStore writes to. Column names are the
// lower-cased record attribute names.
const Schema = `
CREATE TABLE IF NOT EXISTS license_applications (
	app_uuid             TEXT PRIMARY KEY,
	document_number      TEXT,
	first_name           TEXT,
	last_name            TEXT,
	date_of_birth        TEXT,
	address              TEXT,
	state_in_address     TEXT,
	city_in_address      TEXT,
	zip_code_in_address  TEXT,
	license_selfie_match BOOLEAN,
	license_details_match BOOLEAN,
	license_validation   BOOLEAN,
	aborted_stage        TEXT,
	abort_reason         TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps records in a single table keyed by app_uuid.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create license_applications: %w", err)
	}
	return nil
}

func column(field string) string {
	return strings.ToLower(field)
}

// upsert inserts the row if needed and otherwise updates only the given columns.
func (p *PostgresStore) upsert(ctx context.Context, applicationID string, fields []string, values []interface{}) error {
	cols := make([]string, len(fields))
	placeholders := make([]string, len(fields))
	sets := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = column(f)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", cols[i], cols[i])
	}

	query := fmt.Sprintf(`
		INSERT INTO license_applications (app_uuid, %s)
		VALUES ($1, %s)
		ON CONFLICT (app_uuid) DO UPDATE SET %s, updated_at = NOW()`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)

	args := append([]interface{}{applicationID}, values...)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewRecordUpdateFailedError(strings.Join(fields, ","), err)
	}
	return nil
}

func (p *PostgresStore) UpsertClaim(ctx context.Context, applicationID string, claim models.ClaimFields) error {
	restricted := claim.Restrict()
	var fields []string
	var values []interface{}
	for _, name := range models.ClaimFieldNames {
		if v, ok := restricted[name]; ok {
			fields = append(fields, name)
			values = append(values, v)
		}
	}
	if len(fields) == 0 {
		return apperrors.NewClaimParseFailedError("claim has no schema fields")
	}
	return p.upsert(ctx, applicationID, fields, values)
}

func (p *PostgresStore) SetVerdict(ctx context.Context, applicationID, field string, verdict bool) error {
	if err := checkVerdictField(field); err != nil {
		return err
	}
	return p.upsert(ctx, applicationID, []string{field}, []interface{}{verdict})
}

func (p *PostgresStore) MarkAborted(ctx context.Context, applicationID, stage, reason string) error {
	return p.upsert(ctx, applicationID,
		[]string{models.FieldAbortedStage, models.FieldAbortReason},
		[]interface{}{stage, reason})
}

const clearAbortQuery = `
		UPDATE license_applications
		SET aborted_stage = NULL, abort_reason = NULL, updated_at = NOW()
		WHERE app_uuid = $1 AND aborted_stage = $2`

func (p *PostgresStore) ClearAbort(ctx context.Context, applicationID, stage string) error {
	if _, err := p.db.ExecContext(ctx, clearAbortQuery, applicationID, stage); err != nil {
		return apperrors.NewRecordUpdateFailedError(models.FieldAbortedStage, err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, applicationID string) (*models.Record, error) {
	claim := make([]sql.NullString, len(models.ClaimFieldNames))
	var face, details, thirdParty sql.NullBool
	var abortedStage, abortReason sql.NullString

	cols := make([]string, len(models.ClaimFieldNames))
	dest := make([]interface{}, 0, len(models.ClaimFieldNames)+5)
	for i, name := range models.ClaimFieldNames {
		cols[i] = column(name)
		dest = append(dest, &claim[i])
	}
	dest = append(dest, &face, &details, &thirdParty, &abortedStage, &abortReason)

	query := fmt.Sprintf(`
		SELECT %s, license_selfie_match, license_details_match, license_validation, aborted_stage, abort_reason
		FROM license_applications
		WHERE app_uuid = $1`, strings.Join(cols, ", "))

	err := p.db.QueryRowContext(ctx, query, applicationID).Scan(dest...)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(applicationID)
	}
	if err != nil {
		return nil, apperrors.NewRecordUpdateFailedError("get", err)
	}

	r := &models.Record{
		ApplicationID: applicationID,
		AbortedStage:  abortedStage.String,
		AbortReason:   abortReason.String,
	}
	for i, name := range models.ClaimFieldNames {
		if claim[i].Valid {
			if r.Claim == nil {
				r.Claim = models.ClaimFields{}
			}
			r.Claim[name] = claim[i].String
		}
	}
	if face.Valid {
		r.FaceMatch = models.Bool(face.Bool)
	}
	if details.Valid {
		r.DetailsMatch = models.Bool(details.Bool)
	}
	if thirdParty.Valid {
		r.ThirdPartyValidation = models.Bool(thirdParty.Bool)
	}
	return r, nil
}
