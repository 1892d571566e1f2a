package records

// Column names of the known fields. They match the header row of
// the existing data file so that it can be read as is.
const (
	FieldProjectNumber          = "项目编号"
	FieldApplicationNumber      = "测试申请单编号"
	FieldApprovalNumber         = "测试申请单飞书审批编号"
	FieldApplicant              = "申请人"
	FieldDepartment             = "申请部门"
	FieldApplicationDate        = "申请日期"
	FieldSummary                = "测试项目概述"
	FieldModel                  = "型号"
	FieldCapacity               = "容量"
	FieldQuantity               = "数量"
	FieldAuxiliaryMaterials     = "辅材/工装"
	FieldSampleDate             = "送样日期"
	FieldExpectedDuration       = "预计时长/天"
	FieldTestStartDate          = "测试开始日期"
	FieldExpectedEndDate        = "预计结束日期"
	FieldProgress               = "测试进度"
	FieldCostCenter             = "成本中心"
	FieldPurchaseApprovalNumber = "采购申请单飞书审批编号"
	FieldExpectedCost           = "预计费用"
	FieldSupplier               = "供应商"
	FieldFactoryExitDate        = "出厂日期"

	// fields holding stored path of an attachment
	FieldQuote      = "报价单"
	FieldTestReport = "测试数据/报告"
	FieldSettlement = "结算单"
)

// FieldIdentifier is the field whose value is unique across records
const FieldIdentifier = FieldApplicationNumber

const (
	ProgressInProgress = "进行中"
	ProgressCompleted  = "已完成"
)

// DateFields are coerced to dates by NormalizeDates
var DateFields = []string{
	FieldApplicationDate,
	FieldSampleDate,
	FieldTestStartDate,
	FieldExpectedEndDate,
	FieldFactoryExitDate,
}

// AttachmentFields are fields whose value is a path returned by
// the attachment store
var AttachmentFields = []string{
	FieldQuote,
	FieldTestReport,
	FieldSettlement,
}

// DefaultRequiredFields must be filled in when a record is created
var DefaultRequiredFields = []string{
	FieldProjectNumber,
	FieldApplicationNumber,
	FieldApprovalNumber,
	FieldApplicant,
	FieldDepartment,
	FieldApplicationDate,
	FieldSummary,
	FieldModel,
	FieldCapacity,
	FieldQuantity,
	FieldAuxiliaryMaterials,
	FieldSampleDate,
	FieldExpectedDuration,
}
