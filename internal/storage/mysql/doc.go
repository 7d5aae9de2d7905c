// Package mysql provides the MySQL-backed operation journal: a durable
// record of every contract write the merchant submits, along with its
// confirmation outcome. A JSON-file fallback is included for local
// development without a database.
package mysql
