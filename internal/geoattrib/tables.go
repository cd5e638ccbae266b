package geoattrib

// Literal lookup tables for the rule engine. Kept in one place so each table
// can be exercised directly in tests.

// canonicalCountries is the canonical country-name set used for exact and
// whole-word substring matching.
var canonicalCountries = []string{
	"Argentina", "Australia", "Austria", "Bangladesh", "Belgium", "Brazil",
	"Bulgaria", "Canada", "Chile", "China", "Colombia", "Croatia", "Cuba",
	"Czech Republic", "Denmark", "Ecuador", "Egypt", "Estonia", "Ethiopia",
	"Finland", "France", "Georgia", "Germany", "Ghana", "Greece", "Hungary",
	"Iceland", "India", "Indonesia", "Iran", "Iraq", "Ireland", "Israel",
	"Italy", "Japan", "Jordan", "Kenya", "Kuwait", "Lebanon", "Lithuania",
	"Malaysia", "Mexico", "Morocco", "Nepal", "Netherlands", "New Zealand",
	"Nigeria", "Norway", "Oman", "Pakistan", "Peru", "Philippines", "Poland",
	"Portugal", "Qatar", "Romania", "Russia", "Saudi Arabia", "Serbia",
	"Singapore", "Slovakia", "Slovenia", "South Africa", "South Korea",
	"Spain", "Sri Lanka", "Sweden", "Switzerland", "Taiwan", "Thailand",
	"Tunisia", "Turkey", "Ukraine", "United Arab Emirates", "United Kingdom",
	"United States", "Uruguay", "Venezuela", "Vietnam",
}

// countrySynonyms maps alias labels (folded: lowercase, periods stripped) to
// canonical country names.
var countrySynonyms = map[string]string{
	"usa":                        "United States",
	"us":                         "United States",
	"united states of america":   "United States",
	"america":                    "United States",
	"uk":                         "United Kingdom",
	"great britain":              "United Kingdom",
	"britain":                    "United Kingdom",
	"england":                    "United Kingdom",
	"scotland":                   "United Kingdom",
	"wales":                      "United Kingdom",
	"northern ireland":           "United Kingdom",
	"pr china":                   "China",
	"p r china":                  "China",
	"people's republic of china": "China",
	"peoples republic of china":  "China",
	"republic of china":          "Taiwan",
	"republic of korea":          "South Korea",
	"korea":                      "South Korea",
	"s korea":                    "South Korea",
	"the netherlands":            "Netherlands",
	"holland":                    "Netherlands",
	"deutschland":                "Germany",
	"uae":                        "United Arab Emirates",
	"russian federation":         "Russia",
	"czechia":                    "Czech Republic",
	"islamic republic of iran":   "Iran",
	"viet nam":                   "Vietnam",
	"brasil":                     "Brazil",
	"turkiye":                    "Turkey",
	"espana":                     "Spain",
	"italia":                     "Italy",
	"new zeland":                 "New Zealand",
	"roc":                        "Taiwan",
}

// ambiguousCountries are canonical names that are also common region names
// (folded). Substring matches are blocked for these unless the whole token
// equals the name, e.g. "Georgia" the US state vs. the country, "Mexico"
// inside "New Mexico".
var ambiguousCountries = map[string]bool{
	"georgia": true,
	"mexico":  true,
	"ireland": true,
	"jersey":  true,
	"india":   true,
}

// usStateCodes maps postal codes to state names, including DC and the common
// territories seen on affiliations.
var usStateCodes = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"DC": "District of Columbia", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana",
	"IA": "Iowa", "KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana",
	"ME": "Maine", "MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan",
	"MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri", "MT": "Montana",
	"NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina",
	"ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma", "OR": "Oregon",
	"PA": "Pennsylvania", "PR": "Puerto Rico", "RI": "Rhode Island",
	"SC": "South Carolina", "SD": "South Dakota", "TN": "Tennessee",
	"TX": "Texas", "UT": "Utah", "VT": "Vermont", "VA": "Virginia",
	"WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin",
	"WY": "Wyoming",
}

// caProvinceCodes maps Canadian postal abbreviations to province names.
var caProvinceCodes = map[string]string{
	"AB": "Alberta", "BC": "British Columbia", "MB": "Manitoba",
	"NB": "New Brunswick", "NL": "Newfoundland and Labrador",
	"NS": "Nova Scotia", "NT": "Northwest Territories", "NU": "Nunavut",
	"ON": "Ontario", "PE": "Prince Edward Island", "QC": "Quebec",
	"SK": "Saskatchewan", "YT": "Yukon",
}

// institutionKeywords flag a token as naming an institution. Multilingual on
// purpose: affiliations arrive in the journal's language.
var institutionKeywords = []string{
	"university", "univ.", "institute", "institut", "instituto", "college",
	"hospital", "hopital", "center", "centre", "centro", "academy",
	"academia", "akademie", "foundation", "fundacion", "universitat",
	"universite", "universidad", "universidade", "universita", "universiteit",
}

// departmentPrefixes mark a token as a department/sub-unit when it begins
// with one of these (folded) and carries no institution keyword.
var departmentPrefixes = []string{
	"department", "dept", "division of", "section of", "unit of",
	"laboratory of", "lab of", "faculty of", "graduate program",
}

var stateNameSet = map[string]string{}
var provinceNameSet = map[string]string{}

func init() {
	for _, name := range usStateCodes {
		stateNameSet[foldKey(name)] = name
	}
	for _, name := range caProvinceCodes {
		provinceNameSet[foldKey(name)] = name
	}
}
