// Package pgstore implements the user and organization collaborators of the
// orgauth engine on Postgres through database/sql and the pgx driver.
package pgstore
