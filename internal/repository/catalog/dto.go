package catalog

import (
	"strconv"
	"strings"
	"time"

	"github.com/atelier-cloud/shelfdex/internal/domain"
)

// Hash field names of a stored record. The FT index schema in Schema()
// must stay in sync with these.
const (
	fieldProductUID    = "product_uid"
	fieldName          = "name"
	fieldVariant       = "variant"
	fieldBrand         = "brand"
	fieldType          = "type"
	fieldCategory      = "category"
	fieldStatus        = "status"
	fieldSize          = "size"
	fieldTags          = "tags"
	fieldThumbnailURL  = "thumbnail_url"
	fieldProductURL    = "product_url"
	fieldCreatedAt     = "created_at"
	fieldGroup         = "group"
	fieldText          = "text"
	fieldLinkHealth    = "link_health"
	fieldLinkError     = "link_error"
	fieldLinkCheckedAt = "link_checked_at"
)

// returnFields lists what searches ask back from the index.
var returnFields = []string{
	fieldProductUID, fieldName, fieldVariant, fieldBrand, fieldType,
	fieldCategory, fieldStatus, fieldSize, fieldTags,
	fieldThumbnailURL, fieldProductURL, fieldCreatedAt,
	fieldLinkHealth, fieldLinkError, fieldLinkCheckedAt,
}

// recordToFields flattens a record into hash fields. The text field
// concatenates everything free-text search should match.
func recordToFields(rec domain.Record) map[string]string {
	fields := map[string]string{
		fieldProductUID:   rec.ProductUID,
		fieldName:         rec.Name,
		fieldVariant:      rec.Variant,
		fieldBrand:        rec.Brand,
		fieldType:         rec.Type,
		fieldCategory:     rec.Category,
		fieldStatus:       rec.Status,
		fieldSize:         strconv.FormatInt(rec.SizeBytes, 10),
		fieldTags:         strings.Join(rec.Tags, ","),
		fieldThumbnailURL: rec.ThumbnailURL,
		fieldProductURL:   rec.ProductURL,
		fieldCreatedAt:    strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10),
		fieldGroup:        rec.GroupKey(),
		fieldText: strings.Join([]string{
			rec.Name, rec.Variant, rec.Brand, rec.Category, strings.Join(rec.Tags, " "),
		}, " "),
	}
	return fields
}

// fieldsToRecord rebuilds a record from hash fields. id is the record key
// with the storage prefix stripped.
func fieldsToRecord(id string, fields map[string]string) domain.Record {
	rec := domain.Record{
		ID:           id,
		ProductUID:   fields[fieldProductUID],
		Name:         fields[fieldName],
		Variant:      fields[fieldVariant],
		Brand:        fields[fieldBrand],
		Type:         fields[fieldType],
		Category:     fields[fieldCategory],
		Status:       fields[fieldStatus],
		ThumbnailURL: fields[fieldThumbnailURL],
		ProductURL:   fields[fieldProductURL],
	}
	if v := fields[fieldSize]; v != "" {
		rec.SizeBytes, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := fields[fieldTags]; v != "" {
		rec.Tags = strings.Split(v, ",")
	}
	if v := fields[fieldCreatedAt]; v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.CreatedAt = time.UnixMilli(ms).UTC()
		}
	}
	rec.LinkHealth = linkStatusOf(fields)
	rec.LinkError = fields[fieldLinkError]
	if v := fields[fieldLinkCheckedAt]; v != "" && v != "0" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.LinkCheckedAt = time.UnixMilli(ms).UTC()
		}
	}
	return rec
}

// linkStatusOf reads the persisted link health of a record, defaulting to
// unknown.
func linkStatusOf(fields map[string]string) domain.LinkStatus {
	switch domain.LinkStatus(fields[fieldLinkHealth]) {
	case domain.LinkOK:
		return domain.LinkOK
	case domain.LinkBroken:
		return domain.LinkBroken
	default:
		return domain.LinkUnknown
	}
}
