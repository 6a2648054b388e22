package ormstore

import (
	"time"

	"github.com/ppamtools/shift-assigner/pkg/core/timeutil"
	"github.com/ppamtools/shift-assigner/pkg/db"
)

// Point represents the puntos_predicacion table
type Point struct {
	ID            int64         `gorm:"primaryKey"`
	Name          string        `gorm:"column:nombre;not null"`
	ValidFrom     *time.Time    `gorm:"column:fecha_inicio;type:date"`
	ValidTo       *time.Time    `gorm:"column:fecha_fin;type:date"`
	MinPublishers *int          `gorm:"column:min_publicadores"`
	MaxPublishers *int          `gorm:"column:max_publicadores"`
	LanguageID    *int64        `gorm:"column:idioma_id"`
	Windows       []PointWindow `gorm:"foreignKey:PointID"`
}

func (Point) TableName() string { return "puntos_predicacion" }

// PointWindow represents the punto_horarios table
type PointWindow struct {
	ID      int64          `gorm:"primaryKey"`
	PointID int64          `gorm:"column:punto_id;not null;uniqueIndex:idx_punto_dia"`
	Weekday int            `gorm:"column:dia_semana;not null;uniqueIndex:idx_punto_dia"`
	Start   timeutil.Clock `gorm:"column:hora_inicio;type:time;not null"`
	End     timeutil.Clock `gorm:"column:hora_fin;type:time;not null"`
}

func (PointWindow) TableName() string { return "punto_horarios" }

// Publisher represents the publicadores table
type Publisher struct {
	ID         int64  `gorm:"primaryKey"`
	FirstName  string `gorm:"column:nombre;not null"`
	LastName   string `gorm:"column:apellido;not null"`
	LanguageID *int64 `gorm:"column:idioma_id"`
}

func (Publisher) TableName() string { return "publicadores" }

// Shift represents the turnos table
type Shift struct {
	ID           int64          `gorm:"primaryKey"`
	PointID      int64          `gorm:"column:punto_id;not null"`
	Date         time.Time      `gorm:"column:fecha;type:date;not null;index:idx_turnos_fecha,priority:1"`
	Start        timeutil.Clock `gorm:"column:hora_inicio;type:time;not null;index:idx_turnos_fecha,priority:2"`
	End          timeutil.Clock `gorm:"column:hora_fin;type:time;not null"`
	Publisher1ID *int64         `gorm:"column:publicador1_id"`
	Publisher2ID *int64         `gorm:"column:publicador2_id"`
	Publisher3ID *int64         `gorm:"column:publicador3_id"`
	Publisher4ID *int64         `gorm:"column:publicador4_id"`
	CaptainID    *int64         `gorm:"column:capitan_id"`
	IsPublic     bool           `gorm:"column:es_publico;not null"`
	Status       string         `gorm:"column:estado;not null"`
}

func (Shift) TableName() string { return "turnos" }

// Request represents the solicitudes_turno table
type Request struct {
	ID          int64          `gorm:"primaryKey"`
	PointID     *int64         `gorm:"column:punto_id;index:idx_solicitudes_punto,priority:1"`
	PublisherID *int64         `gorm:"column:usuario_id;index"`
	Weekday     int            `gorm:"column:dia_semana;not null"`
	Start       timeutil.Clock `gorm:"column:hora_inicio;type:time;not null"`
	End         timeutil.Clock `gorm:"column:hora_fin;type:time;not null"`
	Priority    int            `gorm:"column:prioridad;not null"`
	Status      string         `gorm:"column:estado;not null;index:idx_solicitudes_punto,priority:2"`
	ValidFrom   *time.Time     `gorm:"column:fecha_inicio;type:date"`
	ValidTo     *time.Time     `gorm:"column:fecha_fin;type:date"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	ProcessedAt *time.Time     `gorm:"column:processed_at"`
}

func (Request) TableName() string { return "solicitudes_turno" }

// Absence represents the ausencias table
type Absence struct {
	ID          int64     `gorm:"primaryKey"`
	PublisherID int64     `gorm:"column:usuario_id;not null;index"`
	From        time.Time `gorm:"column:fecha_inicio;type:date;not null"`
	To          time.Time `gorm:"column:fecha_fin;type:date;not null"`
	Reason      string    `gorm:"column:motivo;not null"`
}

func (Absence) TableName() string { return "ausencias" }

// Notification represents the notificaciones table
type Notification struct {
	ID          int64     `gorm:"primaryKey"`
	ShiftID     int64     `gorm:"column:turno_id;not null;index:idx_notificaciones_dedup,priority:1"`
	PublisherID int64     `gorm:"column:usuario_id;not null;index:idx_notificaciones_dedup,priority:2"`
	Kind        string    `gorm:"column:tipo;not null;index:idx_notificaciones_dedup,priority:3"`
	Message     string    `gorm:"column:mensaje;not null"`
	Payload     string    `gorm:"column:payload"`
	Channel     string    `gorm:"column:canal;not null"`
	State       string    `gorm:"column:estado;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;index:idx_notificaciones_dedup,priority:4"`
}

func (Notification) TableName() string { return "notificaciones" }

// Preference represents the optional publicador_punto_preferencias table
type Preference struct {
	PublisherID int64  `gorm:"column:usuario_id;primaryKey;autoIncrement:false"`
	PointID     int64  `gorm:"column:punto_id;primaryKey;autoIncrement:false"`
	Level       string `gorm:"column:nivel;not null"`
}

func (Preference) TableName() string { return "publicador_punto_preferencias" }

// Models lists every table AutoMigrate creates
func Models() []any {
	return []any{&Point{}, &PointWindow{}, &Publisher{}, &Shift{}, &Request{}, &Absence{}, &Notification{}, &Preference{}}
}

func (m *Shift) slots() [db.MaxSlots]*int64 {
	return [db.MaxSlots]*int64{m.Publisher1ID, m.Publisher2ID, m.Publisher3ID, m.Publisher4ID}
}

func (m *Shift) toDomain() *db.Shift {
	return &db.Shift{
		ID:        m.ID,
		PointID:   m.PointID,
		Date:      timeutil.DateOnly(m.Date),
		Start:     m.Start,
		End:       m.End,
		Slots:     m.slots(),
		CaptainID: m.CaptainID,
		IsPublic:  m.IsPublic,
		Status:    db.ShiftStatus(m.Status),
	}
}

func (m *Point) toDomain() *db.PreachingPoint {
	p := &db.PreachingPoint{
		ID:            m.ID,
		Name:          m.Name,
		ValidFrom:     m.ValidFrom,
		ValidTo:       m.ValidTo,
		MinPublishers: m.MinPublishers,
		MaxPublishers: m.MaxPublishers,
		LanguageID:    m.LanguageID,
		Windows:       make(map[time.Weekday]db.Window, len(m.Windows)),
	}
	for _, w := range m.Windows {
		p.Windows[time.Weekday(w.Weekday)] = db.Window{Start: w.Start, End: w.End}
	}
	return p
}

func (m *Request) toDomain() db.ShiftRequest {
	return db.ShiftRequest{
		ID:          m.ID,
		PointID:     m.PointID,
		PublisherID: m.PublisherID,
		Weekday:     time.Weekday(m.Weekday),
		Start:       m.Start,
		End:         m.End,
		Priority:    m.Priority,
		Status:      db.RequestStatus(m.Status),
		ValidFrom:   m.ValidFrom,
		ValidTo:     m.ValidTo,
		CreatedAt:   m.CreatedAt,
	}
}

func requestsToDomain(ms []Request) []db.ShiftRequest {
	out := make([]db.ShiftRequest, 0, len(ms))
	for i := range ms {
		out = append(out, ms[i].toDomain())
	}
	return out
}
