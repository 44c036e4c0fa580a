/*
Package secrets resolves ${secret:name} references in credential fields of
the configuration.

A configuration file can name a secret instead of carrying it:

	identity:
	  secret: ${secret:identity-key}
	evidence:
	  postgres:
	    password: ${secret:db-password}

References are resolved once at load time, before validation. Sources are
tried in order:

  - the secrets directory, when secrets.directory is set. Each secret is a
    file named after it, mode 0600 or 0400, as Kubernetes mounts them.
  - the environment. "db-password" is read from AEGIS_SECRET_DB_PASSWORD
    with the default prefix.

Resolved values are cached for secrets.cache_ttl. Values never appear in
logs; names are shortened before they are logged.
*/
package secrets
