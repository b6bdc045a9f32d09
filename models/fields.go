package models

// FieldNames lists the loader configuration slots baked into the locator
// header, in pointer order. The header advertises one pointer per slot plus
// the module table, so this order is part of the wire format.
var FieldNames = []string{
	"config_data",
	"default_config_dir",
	"config_dir_envvars",
	"config_path_envvars",
	"config_patterns",
	"config_encrypted_patterns",
	"config_encryption_key",
	"config_executable_patterns",
	"config_executable_args_envvar",
	"main_dir",
	"log_filename",
}

func KnownField(name string) bool {
	for _, n := range FieldNames {
		if n == name {
			return true
		}
	}
	return false
}
