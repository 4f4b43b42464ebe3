// Package permission evaluates role and scope requirements for the organization
// hierarchy: organization, branch, department.
//
// # Roles
//
// OWNER outranks LEADER, which outranks MANAGER. Owners bypass every scope check.
// Leaders are scoped to their assigned branches, managers to their assigned
// departments.
//
// # Route table
//
// A [Table] maps (method, route template) to a [Policy] naming the allowed roles
// and an optional scope [Requirement]. The table is built at startup and frozen;
// lookups never consult handler metadata.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network, except through a caller-supplied
//     [DepartmentBranchResolver].
//   - Parse tokens or HTTP requests.
package permission
