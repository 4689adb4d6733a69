package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/storemapper/helper"
)

const (
	IndexTypeBTree = "btree"
	IndexTypeGIN   = "gin"

	propertyIndexPrefix = "idx_entities_"
	maxIdentifierLength = 63
)

var identifierUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// PropertyIndex describes a per-property index of a kind.
// It is stored as JSON in the comment of the index.
type PropertyIndex struct {
	Name     string `json:"-"`
	Kind     string `json:"kind"`
	Property string `json:"property"`
	Type     string `json:"type"`
}

// CreatePropertyIndex (re)creates a partial expression index on one property of a kind.
// indexType: "btree" or "gin"
//   - btree indexes the text value of the property, used by SelectEntitiesByProperty
//   - gin indexes the JSONB value of the property, used by SelectEntitiesContaining
func (h *EntitiesDBHandler) CreatePropertyIndex(ctx context.Context, kind string, property string, indexType string) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if kind == "" || property == "" {
		return helper.NewError("create property index", fmt.Errorf("kind and property are required"))
	}

	var createIndexSQL string
	name := pq.QuoteIdentifier(PropertyIndexName(kind, property))

	switch indexType {
	case IndexTypeBTree:
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX %s ON entities ((properties->>%s)) WHERE kind = %s;`,
			name, pq.QuoteLiteral(property), pq.QuoteLiteral(kind),
		)
	case IndexTypeGIN:
		createIndexSQL = fmt.Sprintf(
			`CREATE INDEX %s ON entities USING GIN ((properties->%s) jsonb_path_ops) WHERE kind = %s;`,
			name, pq.QuoteLiteral(property), pq.QuoteLiteral(kind),
		)
	default:
		return helper.NewError("create property index", fmt.Errorf("unsupported index type: %s (use 'btree' or 'gin')", indexType))
	}

	comment, err := json.Marshal(PropertyIndex{Kind: kind, Property: property, Type: indexType})
	if err != nil {
		return helper.NewError("marshal index comment", err)
	}

	// Drop existing index
	_, err = h.db.Instance.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, name))
	if err != nil {
		return helper.NewError("drop index", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	_, err = h.db.Instance.ExecContext(ctx, fmt.Sprintf(`COMMENT ON INDEX %s IS %s;`, name, pq.QuoteLiteral(string(comment))))
	if err != nil {
		return helper.NewError("comment index", err)
	}

	h.db.Logger.Info(fmt.Sprintf("Created %s index on %s.%s", indexType, kind, property))

	return nil
}

// EnsurePropertyIndex creates the index of a property unless an index
// of the same type already exists.
func (h *EntitiesDBHandler) EnsurePropertyIndex(ctx context.Context, kind string, property string, indexType string) error {
	existing, err := h.selectPropertyIndex(ctx, PropertyIndexName(kind, property))
	if err != nil {
		return helper.NewError("select property index", err)
	}
	if existing != nil && existing.Kind == kind && existing.Property == property && existing.Type == indexType {
		return nil
	}
	return h.CreatePropertyIndex(ctx, kind, property, indexType)
}

// DropPropertyIndex drops the index of a property if it exists
func (h *EntitiesDBHandler) DropPropertyIndex(ctx context.Context, kind string, property string) error {
	_, err := h.db.Instance.ExecContext(
		ctx,
		fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, pq.QuoteIdentifier(PropertyIndexName(kind, property))),
	)
	if err != nil {
		return helper.NewError("drop index", err)
	}
	return nil
}

// SelectPropertyIndexes returns the property indexes of a kind ordered by name
func (h *EntitiesDBHandler) SelectPropertyIndexes(ctx context.Context, kind string) ([]*PropertyIndex, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT c.relname, obj_description(c.oid, 'pg_class')
		FROM pg_class c
		JOIN pg_index i ON i.indexrelid = c.oid
		JOIN pg_class t ON t.oid = i.indrelid
		WHERE t.relname = 'entities'
			AND starts_with(c.relname, $1)
			AND obj_description(c.oid, 'pg_class') IS NOT NULL
		ORDER BY c.relname;`,
		propertyIndexPrefix,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var indexes []*PropertyIndex
	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return nil, helper.NewError("scan", err)
		}

		index, ok := parseIndexComment(name, comment)
		if ok && index.Kind == kind {
			indexes = append(indexes, index)
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return indexes, nil
}

func (h *EntitiesDBHandler) selectPropertyIndex(ctx context.Context, name string) (*PropertyIndex, error) {
	var comment sql.NullString
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT obj_description(to_regclass(quote_ident($1)), 'pg_class');`,
		name,
	).Scan(&comment)
	if err != nil {
		return nil, err
	}
	if !comment.Valid {
		return nil, nil
	}

	index, ok := parseIndexComment(name, comment.String)
	if !ok {
		return nil, nil
	}
	return index, nil
}

func parseIndexComment(name string, comment string) (*PropertyIndex, bool) {
	index := &PropertyIndex{}
	if err := json.Unmarshal([]byte(comment), index); err != nil || index.Kind == "" {
		return nil, false
	}
	index.Name = name
	return index, true
}

// PropertyIndexName returns the index name of a property of a kind.
// The readable part is truncated so the name fits the Postgres identifier
// limit, the hash suffix keeps names of different kinds and properties apart.
func PropertyIndexName(kind string, property string) string {
	hash := fnv.New32a()
	hash.Write([]byte(kind + "\x00" + property))
	suffix := fmt.Sprintf("_%08x", hash.Sum32())

	name := propertyIndexPrefix + sanitizeIdentifier(kind) + "__" + sanitizeIdentifier(property)
	if len(name) > maxIdentifierLength-len(suffix) {
		name = name[:maxIdentifierLength-len(suffix)]
	}
	return name + suffix
}

func sanitizeIdentifier(s string) string {
	return identifierUnsafe.ReplaceAllString(strings.ToLower(s), "_")
}
