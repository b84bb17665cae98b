// Package permissions checks granted permission strings against required ones
// with support for wildcards.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "inventory.*")
//   - "resource.action" - Specific action (e.g., "inventory.restock")
//   - "resource.subresource.action" - Nested permission (e.g., "inventory.batches.retire")
package permissions

import (
	"strings"
)

// Inventory permissions
const (
	InventoryRead         = "inventory.read"
	InventoryRestock      = "inventory.restock"
	InventoryBatchRetire  = "inventory.batches.retire"
	InventoryBatchesAdmin = "inventory.batches.*"
)

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "inventory.*" matches "inventory.read", "inventory.batches.retire", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}
