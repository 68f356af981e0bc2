// Package persist contains the implementations of lockmgr.IPersistence.
//
// FileStore writes the lock table to a JSON file (by default DefaultPath) so
// that granted locks survive a restart of the service. MemoryStore keeps the
// table in memory only.
//
// File Format:
//
//	{
//	  "<transaction id>": [
//	    ["<session id>", "<hmc id>", "<lock type>", <resource id>, [["<flag>", <length>], ...]],
//	    ...
//	  ]
//	}
//
// The file is created with mode 0640, missing directories with mode 0755.
package persist
