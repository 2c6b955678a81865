// Package salesplan holds the sales plan line item, its column layout, the fiscal
// calendar its derived columns follow, and the reconciliation rules between them.
package salesplan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Default physical location of the table.
const (
	DefaultDatabase = "SalesPlanDB"
	DefaultSchema   = "dbo"
	DefaultTable    = "SalesPlanTable"
)

// MaxPreviewRows caps every preview query.
const MaxPreviewRows = 1000

// SalesPlanRecord is one line item of a sales order joined with its delivery
// planning and fiscal-period classification.
//
// Column names follow the table exactly, including its inconsistent casing.
type SalesPlanRecord struct {
	DocumentNo               string          `gorm:"column:DocumentNo" json:"document_no" csv:"DocumentNo"`
	CustomerCode             string          `gorm:"column:CustomerCode" json:"customer_code" csv:"CustomerCode"`
	OrderDate                time.Time       `gorm:"column:OrderDate" json:"order_date" csv:"OrderDate"`
	SalespersonCode          string          `gorm:"column:SalespersonCode" json:"salesperson_code" csv:"SalespersonCode"`
	LineNo                   int             `gorm:"column:LineNo" json:"line_no" csv:"LineNo"`
	MPCode                   int             `gorm:"column:MPCODE" json:"mpcode" csv:"MPCODE"`
	DocumentDescription      string          `gorm:"column:DocumentDescription" json:"document_description" csv:"DocumentDescription"`
	MFGMode                  string          `gorm:"column:MFGMode" json:"mfg_mode" csv:"MFGMode"`
	Type                     string          `gorm:"column:Type" json:"type" csv:"Type"`
	Amount                   decimal.Decimal `gorm:"column:Amount" json:"amount" csv:"Amount"`
	BacklogAmount            decimal.Decimal `gorm:"column:BacklogAmount" json:"backlog_amount" csv:"BacklogAmount"`
	CustomerName             string          `gorm:"column:Customer_Name" json:"customer_name" csv:"Customer_Name"`
	Grade                    string          `gorm:"column:Grade" json:"grade" csv:"Grade"`
	PlannedQuarter           string          `gorm:"column:PlannedQuarter" json:"planned_quarter" csv:"PlannedQuarter"`
	OrderQuarter             string          `gorm:"column:OrderQuarter" json:"order_quarter" csv:"OrderQuarter"`
	PlannedDeliveryFY        string          `gorm:"column:PlannedDeliveryFY" json:"planned_delivery_fy" csv:"PlannedDeliveryFY"`
	OrderFY                  string          `gorm:"column:OrderFY" json:"order_fy" csv:"OrderFY"`
	PlannedMonth             string          `gorm:"column:PlannedMonth" json:"planned_month" csv:"PlannedMonth"`
	MonthName                string          `gorm:"column:MonthName" json:"month_name" csv:"MonthName"`
	DocumentMonthNumber      int             `gorm:"column:document_Month_Number" json:"document_month_number" csv:"document_Month_Number"`
	OrderMonthNumber         int             `gorm:"column:Order_Month_Number" json:"order_month_number" csv:"Order_Month_Number"`
	Item                     string          `gorm:"column:Item" json:"item" csv:"Item"`
	PlannedFYFlag            bool            `gorm:"column:Planned_Fy_Flag" json:"planned_fy_flag" csv:"Planned_Fy_Flag"`
	OrdFYFlag                bool            `gorm:"column:Ord_Fy_Flag" json:"ord_fy_flag" csv:"Ord_Fy_Flag"`
	PlannedDeliveryMonthFlag bool            `gorm:"column:PlannedDeliveryMonthflag" json:"planned_delivery_month_flag" csv:"PlannedDeliveryMonthflag"`
	OrderMonthFlag           bool            `gorm:"column:OrderMonthflag" json:"order_month_flag" csv:"OrderMonthflag"`
	Quantity                 decimal.Decimal `gorm:"column:Quantity" json:"quantity" csv:"Quantity"`
	OutstandingQuantity      decimal.Decimal `gorm:"column:OutstandingQuantity" json:"outstanding_quantity" csv:"OutstandingQuantity"`
	QuantityInvoiced         decimal.Decimal `gorm:"column:QuantityInvoiced" json:"quantity_invoiced" csv:"QuantityInvoiced"`
	PlannedDeliveryDate      time.Time       `gorm:"column:PlannedDeliveryDate" json:"planned_delivery_date" csv:"PlannedDeliveryDate"`
	NoOfLines                int             `gorm:"column:No_of_Lines" json:"no_of_lines" csv:"No_of_Lines"`
	OrderYear                int             `gorm:"column:orderyear" json:"order_year" csv:"orderyear"`
	MonthYear                int             `gorm:"column:monthyear" json:"month_year" csv:"monthyear"`
	MMMMYY                   string          `gorm:"column:MMMMYY" json:"mmmmyy" csv:"MMMMYY"`
}

// TableName returns the unqualified table name
func (SalesPlanRecord) TableName() string {
	return DefaultTable
}

// RecordKey uniquely identifies a row
type RecordKey struct {
	DocumentNo string `json:"document_no"`
	LineNo     int    `json:"line_no"`
}

// Less orders keys by DocumentNo, then numerically by LineNo
func (k RecordKey) Less(other RecordKey) bool {
	if k.DocumentNo != other.DocumentNo {
		return k.DocumentNo < other.DocumentNo
	}
	return k.LineNo < other.LineNo
}

// String renders the key as "DocumentNo#LineNo"
func (k RecordKey) String() string {
	return fmt.Sprintf("%s#%d", k.DocumentNo, k.LineNo)
}

// Key returns the (DocumentNo, LineNo) key of the record
func (r *SalesPlanRecord) Key() RecordKey {
	return RecordKey{DocumentNo: r.DocumentNo, LineNo: r.LineNo}
}

// Values returns the record's column values in Columns order.
func (r *SalesPlanRecord) Values() []any {
	return []any{
		r.DocumentNo,
		r.CustomerCode,
		r.OrderDate,
		r.SalespersonCode,
		r.LineNo,
		r.MPCode,
		r.DocumentDescription,
		r.MFGMode,
		r.Type,
		r.Amount,
		r.BacklogAmount,
		r.CustomerName,
		r.Grade,
		r.PlannedQuarter,
		r.OrderQuarter,
		r.PlannedDeliveryFY,
		r.OrderFY,
		r.PlannedMonth,
		r.MonthName,
		r.DocumentMonthNumber,
		r.OrderMonthNumber,
		r.Item,
		r.PlannedFYFlag,
		r.OrdFYFlag,
		r.PlannedDeliveryMonthFlag,
		r.OrderMonthFlag,
		r.Quantity,
		r.OutstandingQuantity,
		r.QuantityInvoiced,
		r.PlannedDeliveryDate,
		r.NoOfLines,
		r.OrderYear,
		r.MonthYear,
		r.MMMMYY,
	}
}

// ClampPreviewLimit bounds a requested row count to (0, MaxPreviewRows].
// Zero or negative means "as many as allowed".
func ClampPreviewLimit(limit int) int {
	if limit <= 0 || limit > MaxPreviewRows {
		return MaxPreviewRows
	}
	return limit
}
