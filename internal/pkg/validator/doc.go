// Package validator checks request structs against their `validate` tags and
// reports failures as a snake_case field -> message map.
package validator
