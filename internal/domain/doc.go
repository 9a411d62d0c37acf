// Package domain models Open Brewery DB records and the medallion layers
// built from them.
//
// # Data Source
//
// Records come from the Open Brewery DB list endpoint
// (https://api.openbrewerydb.org/v1/breweries). One GET returns a JSON array
// of flat brewery objects; the pipeline does not paginate. Every field may be
// null, and numeric fields (latitude, longitude) are kept as [json.Number] so
// their textual form survives the raw layer untouched.
//
// # Layers
//
// Raw: the API response persisted verbatim as one JSON array.
//
// Silver: a [Table] with uniform string cells, produced by [Transform]:
//
//	address_1, address_2, address_3, street  →  address
//	null cell in column c                     →  "c not informed"
//	any other value                           →  its string form
//
// Gold: one [LocationCount] per (country, state, city, brewery_type) observed
// in silver, produced by [Aggregate].
//
// # Address Rule
//
// The address column is chosen from address_1 and street with an ordered
// decision table:
//
//	address_1  street    address
//	null       null      "address not informed"
//	x          x         x
//	null       y         y
//	x          null      x
//	x          y (≠ x)   x
//
// address_2 and address_3 never contribute; they are dropped with the other
// raw address columns.
package domain
