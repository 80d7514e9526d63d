// Copyright 2025 Petr Havelka <petr.havelka.dev@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aggregate

import "strings"

// Method identifies the operation an LPE fragment represents. The POS
// terminal tags each fragment with a Method attribute; everything not
// covered by a known value falls through to MethodUnknown and is kept
// as an "other fragment".
type Method int

const (
	MethodUnknown Method = iota
	MethodSetParam
	MethodInit
	MethodAddItem
	MethodAddTender
	MethodAddDocument
	MethodAddDocumentResponse
	MethodGetTriggeredPromotions
	MethodQuery
	MethodQueryResponse
	MethodAddMmbrCard
	MethodAddMmbrInfo
	MethodGetLoyaltySummary
	MethodGetSaversSummary
)

var methodNames = map[Method]string{
	MethodUnknown:                "unknown",
	MethodSetParam:               "SetParam",
	MethodInit:                   "Init",
	MethodAddItem:                "AddItem",
	MethodAddTender:              "AddTender",
	MethodAddDocument:            "AddDocument",
	MethodAddDocumentResponse:    "AddDocument(Response)",
	MethodGetTriggeredPromotions: "GetTriggeredPromotions",
	MethodQuery:                  "Query",
	MethodQueryResponse:          "Query(Response)",
	MethodAddMmbrCard:            "AddMmbrCard",
	MethodAddMmbrInfo:            "AddMmbrInfo",
	MethodGetLoyaltySummary:      "GetLoyaltySummary",
	MethodGetSaversSummary:       "GetSaversSummary",
}

func (m Method) String() string {
	if v, ok := methodNames[m]; ok {
		return v
	}
	return "unknown"
}

// MethodOf classifies a raw Method attribute value. The summary and
// triggered-promotion families carry variant suffixes on the wire and
// are matched by prefix; Query(Response) must be tested before the
// plain Query prefix would shadow it.
func MethodOf(name string) Method {
	switch name {
	case "SetParam":
		return MethodSetParam
	case "Init":
		return MethodInit
	case "AddItem":
		return MethodAddItem
	case "AddTender":
		return MethodAddTender
	case "AddDocument":
		return MethodAddDocument
	case "AddDocument(Response)":
		return MethodAddDocumentResponse
	case "Query":
		return MethodQuery
	case "Query(Response)":
		return MethodQueryResponse
	case "AddMmbrCard":
		return MethodAddMmbrCard
	case "AddMmbrInfo":
		return MethodAddMmbrInfo
	}
	switch {
	case strings.HasPrefix(name, "GetTriggeredPromotions"):
		return MethodGetTriggeredPromotions
	case strings.HasPrefix(name, "GetLoyaltySummary"):
		return MethodGetLoyaltySummary
	case strings.HasPrefix(name, "GetSaversSummary"):
		return MethodGetSaversSummary
	}
	return MethodUnknown
}
