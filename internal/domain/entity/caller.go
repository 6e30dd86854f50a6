package entity

// Tipos de identidad para llamadas salientes.
const (
	CallerUser    = "user"
	CallerService = "service"
)

// Roles de usuario que viajan en el JWT.
const (
	RoleAdmin     = "admin"
	RoleBodeguero = "bodeguero"
	RoleVendedor  = "vendedor"
)

// Caller identifica en nombre de quién se hace una llamada a otro servicio.
// Un usuario final reenvía su bearer sin cambios; un servicio interno se marca
// como llamador de confianza. Los dos modos nunca se mezclan.
type Caller struct {
	Kind        string
	BearerToken string
	Service     string
}

// UserCaller llamada hecha en nombre de un usuario interactivo.
func UserCaller(token string) Caller {
	return Caller{Kind: CallerUser, BearerToken: token}
}

// ServiceCaller llamada servicio a servicio, sin usuario en el bucle.
func ServiceCaller(name string) Caller {
	return Caller{Kind: CallerService, Service: name}
}

// IsService indica si es una llamada interna de confianza.
func (c Caller) IsService() bool { return c.Kind == CallerService }
