package usecases

import (
	"encoding/json"
	"strings"

	"github.com/samirrijal/placedesk/internal/core/domain"
)

const assistantInstructions = `You help an administrator correct place records.
Answer briefly. When you propose changes, include exactly one fenced JSON code
block containing only the fields to change, using these keys:
nameCN, nameEN, category (attraction|restaurant|shopping|lodging|transit-hub),
address, description, rating (0-5), externalPlaceId, cityId,
location {"lat": number, "lng": number}, metadata {...}, physicalMetadata {...}.
Omit every field you are not changing. Never include id, createdAt or updatedAt.
Give coordinates only when you are confident of them.`

// buildInstructions combines the fixed instructions with the current record.
func buildInstructions(record *domain.PlaceRecord) string {
	if record == nil {
		return assistantInstructions
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return assistantInstructions
	}
	var b strings.Builder
	b.WriteString(assistantInstructions)
	b.WriteString("\n\nCurrent record:\n```json\n")
	b.Write(data)
	b.WriteString("\n```")
	return b.String()
}
