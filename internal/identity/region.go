package identity

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

var subdivisionRe = regexp.MustCompile(`^[A-Z0-9]{1,3}$`)

// NormalizeRegion validates a declared region code ("FR", "us-ca") and
// returns its canonical bucket ("FR", "US-CA"). Only ISO 3166-1 country
// codes are accepted as the first part.
func NormalizeRegion(raw string) (string, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}
	cc, sub, hasSub := strings.Cut(raw, "-")
	if len(cc) != 2 {
		return "", false
	}
	reg, err := language.ParseRegion(cc)
	if err != nil || !reg.IsCountry() {
		return "", false
	}
	bucket := reg.String()
	if hasSub {
		if !subdivisionRe.MatchString(sub) {
			return "", false
		}
		bucket += "-" + sub
	}
	return bucket, true
}

// RegionFromLocale derives a country from an Accept-Language style value,
// for example "en-GB,en;q=0.8". Only explicit or high-confidence regions
// count; a bare "en" does not imply a country.
func RegionFromLocale(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil {
		return "", false
	}
	for _, tag := range tags {
		reg, conf := tag.Region()
		if conf < language.High || !reg.IsCountry() {
			continue
		}
		return reg.String(), true
	}
	return "", false
}

// RegionFromTimezone maps an IANA timezone name to the country it most
// likely belongs to.
func RegionFromTimezone(tz string) (string, bool) {
	cc, ok := timezoneCountries[strings.TrimSpace(tz)]
	return cc, ok
}

// timezoneCountries covers the zones that carry most traffic. Zones shared by
// several countries map to the most populous one.
var timezoneCountries = map[string]string{
	"America/New_York":               "US",
	"America/Chicago":                "US",
	"America/Denver":                 "US",
	"America/Phoenix":                "US",
	"America/Los_Angeles":            "US",
	"America/Anchorage":              "US",
	"America/Detroit":                "US",
	"America/Indiana/Indianapolis":   "US",
	"Pacific/Honolulu":               "US",
	"America/Toronto":                "CA",
	"America/Vancouver":              "CA",
	"America/Edmonton":               "CA",
	"America/Winnipeg":               "CA",
	"America/Halifax":                "CA",
	"America/St_Johns":               "CA",
	"America/Mexico_City":            "MX",
	"America/Monterrey":              "MX",
	"America/Tijuana":                "MX",
	"America/Cancun":                 "MX",
	"America/Sao_Paulo":              "BR",
	"America/Manaus":                 "BR",
	"America/Fortaleza":              "BR",
	"America/Argentina/Buenos_Aires": "AR",
	"America/Santiago":               "CL",
	"America/Bogota":                 "CO",
	"America/Lima":                   "PE",
	"America/Caracas":                "VE",
	"Europe/London":                  "GB",
	"Europe/Dublin":                  "IE",
	"Europe/Lisbon":                  "PT",
	"Europe/Madrid":                  "ES",
	"Europe/Paris":                   "FR",
	"Europe/Brussels":                "BE",
	"Europe/Amsterdam":               "NL",
	"Europe/Berlin":                  "DE",
	"Europe/Zurich":                  "CH",
	"Europe/Vienna":                  "AT",
	"Europe/Rome":                    "IT",
	"Europe/Stockholm":               "SE",
	"Europe/Oslo":                    "NO",
	"Europe/Copenhagen":              "DK",
	"Europe/Helsinki":                "FI",
	"Europe/Warsaw":                  "PL",
	"Europe/Prague":                  "CZ",
	"Europe/Budapest":                "HU",
	"Europe/Bucharest":               "RO",
	"Europe/Athens":                  "GR",
	"Europe/Istanbul":                "TR",
	"Europe/Kyiv":                    "UA",
	"Europe/Kiev":                    "UA",
	"Europe/Moscow":                  "RU",
	"Asia/Yekaterinburg":             "RU",
	"Asia/Novosibirsk":               "RU",
	"Asia/Vladivostok":               "RU",
	"Asia/Dubai":                     "AE",
	"Asia/Riyadh":                    "SA",
	"Asia/Tehran":                    "IR",
	"Asia/Jerusalem":                 "IL",
	"Asia/Karachi":                   "PK",
	"Asia/Kolkata":                   "IN",
	"Asia/Calcutta":                  "IN",
	"Asia/Dhaka":                     "BD",
	"Asia/Bangkok":                   "TH",
	"Asia/Ho_Chi_Minh":               "VN",
	"Asia/Jakarta":                   "ID",
	"Asia/Singapore":                 "SG",
	"Asia/Kuala_Lumpur":              "MY",
	"Asia/Manila":                    "PH",
	"Asia/Shanghai":                  "CN",
	"Asia/Hong_Kong":                 "HK",
	"Asia/Taipei":                    "TW",
	"Asia/Seoul":                     "KR",
	"Asia/Tokyo":                     "JP",
	"Australia/Sydney":               "AU",
	"Australia/Melbourne":            "AU",
	"Australia/Brisbane":             "AU",
	"Australia/Perth":                "AU",
	"Australia/Adelaide":             "AU",
	"Pacific/Auckland":               "NZ",
	"Africa/Cairo":                   "EG",
	"Africa/Lagos":                   "NG",
	"Africa/Nairobi":                 "KE",
	"Africa/Johannesburg":            "ZA",
	"Africa/Casablanca":              "MA",
	"Africa/Accra":                   "GH",
	"Africa/Addis_Ababa":             "ET",
}
