package importer

import (
	"strings"

	"github.com/lingoria/school-ops-api/internal/models"
)

// Enum mappings are exact, matched case-insensitively after trimming. An
// Airtable value without an entry is never guessed at; the record is skipped
// and a warning recorded.

var channelMapping = map[string]string{
	"instagram":     "instagram",
	"tiktok":        "tiktok",
	"google":        "google",
	"google search": "google",
	"referral":      "referral",
	"word of mouth": "word_of_mouth",
	"website":       "website",
}

var onboardingStatusMapping = map[string]models.TeacherOnboardingStatus{
	"onboarding":    models.TeacherOnboarding,
	"in onboarding": models.TeacherOnboarding,
	"active":        models.TeacherActive,
	"offboarded":    models.TeacherOffboarded,
}

var cohortStatusMapping = map[string]models.CohortStatus{
	"enrollment open":   models.CohortEnrollmentOpen,
	"enrollment closed": models.CohortEnrollmentClosed,
	"class ended":       models.CohortClassEnded,
}

var enrollmentStatusMapping = map[string]models.EnrollmentStatus{
	"interested":           models.EnrollmentInterested,
	"beginner form filled": models.EnrollmentBeginnerFormFilled,
	"contract signed":      models.EnrollmentContractSigned,
	"paid":                 models.EnrollmentPaid,
	"welcome package sent": models.EnrollmentWelcomeSent,
	"dropped out":          models.EnrollmentDroppedOut,
	"declined":             models.EnrollmentDeclined,
	"abandoned":            models.EnrollmentAbandoned,
}

var productFormatMapping = map[string]models.ProductFormat{
	"group":   models.ProductFormatGroup,
	"private": models.ProductFormatPrivate,
	"1:1":     models.ProductFormatPrivate,
}

var productLocationMapping = map[string]models.ProductLocation{
	"online":    models.ProductLocationOnline,
	"in person": models.ProductLocationInPerson,
	"in-person": models.ProductLocationInPerson,
	"onsite":    models.ProductLocationInPerson,
}

var weekdayMapping = map[string]string{
	"monday":    "monday",
	"tuesday":   "tuesday",
	"wednesday": "wednesday",
	"thursday":  "thursday",
	"friday":    "friday",
	"saturday":  "saturday",
	"sunday":    "sunday",
}

func normalizeEnum(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func mapChannel(raw string) (string, bool) {
	v, ok := channelMapping[normalizeEnum(raw)]
	return v, ok
}

func mapOnboardingStatus(raw string) (models.TeacherOnboardingStatus, bool) {
	v, ok := onboardingStatusMapping[normalizeEnum(raw)]
	return v, ok
}

func mapCohortStatus(raw string) (models.CohortStatus, bool) {
	v, ok := cohortStatusMapping[normalizeEnum(raw)]
	return v, ok
}

func mapEnrollmentStatus(raw string) (models.EnrollmentStatus, bool) {
	v, ok := enrollmentStatusMapping[normalizeEnum(raw)]
	return v, ok
}

func mapProductFormat(raw string) (models.ProductFormat, bool) {
	v, ok := productFormatMapping[normalizeEnum(raw)]
	return v, ok
}

func mapProductLocation(raw string) (models.ProductLocation, bool) {
	v, ok := productLocationMapping[normalizeEnum(raw)]
	return v, ok
}

func mapWeekday(raw string) (string, bool) {
	v, ok := weekdayMapping[normalizeEnum(raw)]
	return v, ok
}
