// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package propertyfile

import "github.com/bureau-foundation/propscan/lib/schema"

// SalesTable is the output table for property sale records.
const SalesTable = "property_sale"

// Sale field names, in storage order.
const (
	FieldDistrictCode     = "DistrictCode"
	FieldPropertyID       = "PropertyId"
	FieldSaleCounter      = "SaleCounter"
	FieldDownloadDateTime = "DownloadDateTime"
	FieldPropertyName     = "PropertyName"
	FieldUnitNumber       = "UnitNumber"
	FieldHouseNumber      = "HouseNumber"
	FieldStreetName       = "StreetName"
	FieldLocality         = "Locality"
	FieldPostCode         = "PostCode"
	FieldArea             = "Area"
	FieldAreaType         = "AreaType"
	FieldContractDate     = "ContractDate"
	FieldSettlementDate   = "SettlementDate"
	FieldPurchasePrice    = "PurchasePrice"
	FieldZoning           = "Zoning"
	FieldNatureOfProperty = "NatureOfProperty"
	FieldPrimaryPurpose   = "PrimaryPurpose"
	FieldStrataLotNumber  = "StrataLotNumber"
	FieldComponentCode    = "ComponentCode"
	FieldSaleCode         = "SaleCode"
	FieldInterestOfSale   = "InterestOfSale"
	FieldDealingNumber    = "DealingNumber"
	FieldLegalDescription = "LegalDescription"
)

// saleFields lists the B record columns in file order. The legal
// description comes from C records and is appended last.
var saleFields = []string{
	FieldDistrictCode,
	FieldPropertyID,
	FieldSaleCounter,
	FieldDownloadDateTime,
	FieldPropertyName,
	FieldUnitNumber,
	FieldHouseNumber,
	FieldStreetName,
	FieldLocality,
	FieldPostCode,
	FieldArea,
	FieldAreaType,
	FieldContractDate,
	FieldSettlementDate,
	FieldPurchasePrice,
	FieldZoning,
	FieldNatureOfProperty,
	FieldPrimaryPurpose,
	FieldStrataLotNumber,
	FieldComponentCode,
	FieldSaleCode,
	FieldInterestOfSale,
	FieldDealingNumber,
}

// SalesSchema returns the schema of property sale records.
func SalesSchema() schema.Schema {
	names := append(append([]string(nil), saleFields...), FieldLegalDescription)
	return schema.Text(SalesTable, names...)
}
