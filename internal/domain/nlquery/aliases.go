package nlquery

import (
	"regexp"
	"strings"
)

// DefaultColumnAliases maps names that generators commonly invent to the real
// column. Keys are lower case with brackets and whitespace removed.
var DefaultColumnAliases = map[string]string{
	"mmmmyy":            "MMMMYY",
	"mmmyy":             "MMMMYY",
	"mmmy":              "MMMMYY",
	"mmyy":              "MMMMYY",
	"ord_fy":            "OrderFY",
	"orderfy":           "OrderFY",
	"fy":                "OrderFY",
	"ordfy":             "OrderFY",
	"month_year":        "monthyear",
	"my":                "monthyear",
	"mfg":               "MFGMode",
	"mfgmode":           "MFGMode",
	"manufacturingmode": "MFGMode",
	"doctype":           "Type",
	"ordertype":         "Type",
	"amt":               "Amount",
	"value":             "Amount",
	"orderdate":         "OrderDate",
	"invoicedquantity":  "QuantityInvoiced",
	"customername":      "Customer_Name",
}

var aliasKeyCleaner = regexp.MustCompile(`[\[\]\s]`)

func aliasKey(name string) string {
	return strings.ToLower(aliasKeyCleaner.ReplaceAllString(name, ""))
}
