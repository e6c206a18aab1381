// internal/transport/httpapi/schemas.go
package httpapi

import "renter-wizard/internal/common/validation"

var openSessionSchema = validation.MustCompile("open-session", `{
  "type": "object",
  "required": ["userId"],
  "properties": {
    "userId":  {"type": "string", "minLength": 1, "maxLength": 128},
    "surface": {"type": "string", "enum": ["desktop", "mobile"]}
  },
  "additionalProperties": false
}`)

var personalInfoSchema = validation.MustCompile("personal-info", `{
  "type": "object",
  "properties": {
    "firstName":   {"type": "string", "maxLength": 100},
    "lastName":    {"type": "string", "maxLength": 100},
    "dateOfBirth": {"type": "string", "maxLength": 10}
  },
  "additionalProperties": false
}`)

const identificationItem = `{
  "type": "object",
  "properties": {
    "idType":    {"type": "string"},
    "idNumber":  {"type": "string", "maxLength": 64},
    "isPrimary": {"type": "boolean"},
    "idPhotos": {
      "type": "array",
      "maxItems": 10,
      "items": {
        "type": "object",
        "properties": {
          "url":       {"type": "string"},
          "isPrimary": {"type": "boolean"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var identificationSchema = validation.MustCompile("identification", identificationItem)

var identificationsSchema = validation.MustCompile("identifications", `{
  "type": "array",
  "maxItems": 10,
  "items": `+identificationItem+`
}`)

var residenceSchema = validation.MustCompile("residence", `{
  "type": "object",
  "properties": {
    "street":              {"type": "string"},
    "apt":                 {"type": "string"},
    "city":                {"type": "string"},
    "state":               {"type": "string"},
    "zipCode":             {"type": "string"},
    "monthlyPayment":      {"type": "number"},
    "durationOfTenancy":   {"type": "integer", "minimum": 0, "maximum": 1200},
    "housingStatus":       {"type": "string"},
    "landlordName":        {"type": "string"},
    "landlordEmail":       {"type": "string"},
    "landlordPhoneNumber": {"type": "string"}
  },
  "additionalProperties": false
}`)

const incomeItem = `{
  "type": "object",
  "properties": {
    "source":        {"type": "string"},
    "monthlyAmount": {"type": "number"}
  },
  "additionalProperties": false
}`

var incomeSchema = validation.MustCompile("income", incomeItem)

var incomesSchema = validation.MustCompile("incomes", `{
  "type": "array",
  "maxItems": 20,
  "items": `+incomeItem+`
}`)

var answersSchema = validation.MustCompile("answers", `{
  "type": "object",
  "properties": {
    "felony":             {"type": ["boolean", "null"]},
    "felonyExplanation":  {"type": "string", "maxLength": 2000},
    "evicted":            {"type": ["boolean", "null"]},
    "evictedExplanation": {"type": "string", "maxLength": 2000}
  },
  "additionalProperties": false
}`)

var transitionSchema = validation.MustCompile("transition", `{
  "type": "object",
  "properties": {
    "target":    {"type": "integer", "minimum": 0},
    "direction": {"type": "string", "enum": ["next", "back"]}
  },
  "oneOf": [
    {"required": ["target"]},
    {"required": ["direction"]}
  ],
  "additionalProperties": false
}`)

var skipSchema = validation.MustCompile("skip", `{
  "type": "object",
  "required": ["target"],
  "properties": {
    "target": {"type": "integer", "minimum": 0}
  },
  "additionalProperties": false
}`)
