package main

// The parser keeps the current token in curTok; every parse function is
// entered with curTok already loaded and leaves it at the first token it
// did not consume.

var curTok int

func getNextToken() int {
	curTok = NextToken()
	return curTok
}

func tokPrecedence(tok int) int {
	switch tok {
	case tokOr:
		return 5
	case tokAnd:
		return 6
	case '|':
		return 7
	case '^':
		return 8
	case '&':
		return 9
	case tokEq, tokNe:
		return 10
	case '<', '>', tokLe, tokGe:
		return 12
	case '+', '-':
		return 20
	case '*', '/', '%':
		return 40
	}
	return -1
}

func eatNewlines() {
	for curTok == tokEOL {
		getNextToken()
	}
}

func skipToNextLine() {
	for curTok != tokEOL && curTok != tokEOF && curTok != tokError {
		getNextToken()
	}
	if curTok == tokEOL {
		getNextToken()
	}
}

func parseNumberExpr() Expr {
	e := &NumberExpr{exprBase: exprBase{Loc: curLoc}, Val: numVal, IsInt: numIsInt, IntVal: numIntVal}
	getNextToken()
	return e
}

func parseParenExpr() Expr {
	getNextToken() // eat '('
	v := ParseExpression()
	if v == nil {
		return nil
	}
	if curTok != ')' {
		logErrorExpr(curLoc, "expected ')'")
		return nil
	}
	getNextToken() // eat ')'
	return v
}

func parseIdentifierExpr() Expr {
	idName := identifierStr
	idLoc := curLoc
	getNextToken() // eat identifier

	var e Expr
	if idName == "addr" && curTok == '(' {
		getNextToken() // eat '('
		operand := ParseExpression()
		if operand == nil {
			return nil
		}
		if curTok != ')' {
			logErrorExpr(curLoc, "Expected ')' after addr operand")
			return nil
		}
		getNextToken() // eat ')'
		e = &AddrExpr{exprBase: exprBase{Loc: idLoc}, Operand: operand}
	} else {
		e = &VariableExpr{exprBase: exprBase{Loc: idLoc}, Name: idName}
	}

	for {
		switch curTok {
		case '(':
			callee, ok := variableName(e)
			if !ok {
				logErrorExpr(curLoc, "Only named functions can be called")
				return nil
			}
			getNextToken() // eat '('
			var args []Expr
			if curTok != ')' {
				for {
					arg := ParseExpression()
					if arg == nil {
						return nil
					}
					args = append(args, arg)
					if curTok == ')' {
						break
					}
					if curTok != ',' {
						logErrorExpr(curLoc, "Expected ')' or ',' in argument list")
						return nil
					}
					getNextToken()
				}
			}
			getNextToken() // eat ')'
			e = &CallExpr{exprBase: exprBase{Loc: idLoc}, Callee: callee, Args: args}
		case '[':
			indexLoc := curLoc
			getNextToken() // eat '['
			index := ParseExpression()
			if index == nil {
				return nil
			}
			if curTok != ']' {
				logErrorExpr(curLoc, "Expected ']'")
				return nil
			}
			getNextToken() // eat ']'
			e = &IndexExpr{exprBase: exprBase{Loc: indexLoc}, Base: e, Index: index}
		case '.':
			memberLoc := curLoc
			getNextToken() // eat '.'
			if curTok != tokIdentifier {
				logErrorExpr(curLoc, "Expected field name after '.'")
				return nil
			}
			field := identifierStr
			getNextToken() // eat field name
			e = &MemberExpr{exprBase: exprBase{Loc: memberLoc}, Base: e, Field: field}
		default:
			return e
		}
	}
}

func parseVarExpr() Expr {
	varLoc := curLoc
	getNextToken() // eat 'var'

	if curTok != tokIdentifier {
		logErrorExpr(curLoc, "expected identifier after var")
		return nil
	}

	var vars []VarInit
	for {
		name := identifierStr
		getNextToken() // eat identifier

		var init Expr
		if curTok == '=' {
			getNextToken() // eat '='
			init = ParseExpression()
			if init == nil {
				return nil
			}
		}
		vars = append(vars, VarInit{Name: name, Init: init})

		if curTok != ',' {
			break
		}
		getNextToken() // eat ','
		if curTok != tokIdentifier {
			logErrorExpr(curLoc, "expected identifier list after var")
			return nil
		}
	}

	if curTok != tokIn {
		logErrorExpr(curLoc, "expected 'in' keyword after 'var'")
		return nil
	}
	getNextToken() // eat 'in'
	eatNewlines()

	body := ParseExpression()
	if body == nil {
		return nil
	}
	return &VarInExpr{exprBase: exprBase{Loc: varLoc}, Vars: vars, Body: body}
}

func parsePrimary() Expr {
	switch curTok {
	case tokIdentifier:
		return parseIdentifierExpr()
	case tokNumber:
		return parseNumberExpr()
	case '(':
		return parseParenExpr()
	case tokVar:
		return parseVarExpr()
	default:
		logErrorExpr(curLoc, "Unknown token when expecting an expression")
		return nil
	}
}

func parseUnary() Expr {
	if curTok != '+' && curTok != '-' && curTok != '!' && curTok != '~' && curTok != tokNot {
		return parsePrimary()
	}
	op := curTok
	opLoc := curLoc
	getNextToken()
	operand := parseUnary()
	if operand == nil {
		return nil
	}
	return &UnaryExpr{exprBase: exprBase{Loc: opLoc}, Op: op, Operand: operand}
}

func parseBinOpRHS(exprPrec int, lhs Expr) Expr {
	for {
		tokPrec := tokPrecedence(curTok)
		if tokPrec < exprPrec {
			return lhs
		}

		binOp := curTok
		binLoc := curLoc
		getNextToken() // eat binop

		rhs := parseUnary()
		if rhs == nil {
			return nil
		}

		if tokPrec < tokPrecedence(curTok) {
			rhs = parseBinOpRHS(tokPrec+1, rhs)
			if rhs == nil {
				return nil
			}
		}
		lhs = &BinaryExpr{exprBase: exprBase{Loc: binLoc}, Op: binOp, LHS: lhs, RHS: rhs}
	}
}

// ParseExpression parses unary binoprhs.
func ParseExpression() Expr {
	lhs := parseUnary()
	if lhs == nil {
		return nil
	}
	return parseBinOpRHS(0, lhs)
}

func parseTypeExpr() *TypeExpr {
	if curTok != tokIdentifier {
		logErrorExpr(curLoc, "Expected type name")
		return nil
	}
	tyName := identifierStr
	getNextToken() // eat type name

	if tyName == "ptr" {
		if curTok != '[' {
			logErrorExpr(curLoc, "Expected '[' after ptr")
			return nil
		}
		getNextToken() // eat '['
		elem := parseTypeExpr()
		if elem == nil {
			return nil
		}
		if curTok != ']' {
			logErrorExpr(curLoc, "Expected ']' after ptr element type")
			return nil
		}
		getNextToken() // eat ']'
		return pointerTo(elem)
	}

	if isBuiltinTypeName(tyName) {
		return builtinType(tyName)
	}
	return aliasRef(tyName)
}

// parseTypeAliasDecl handles `type Name = TypeExpr` and updates the alias
// registry directly; it produces no AST.
func parseTypeAliasDecl() bool {
	if curTok != tokType {
		return false
	}
	getNextToken() // eat 'type'
	if curTok != tokIdentifier {
		logErrorExpr(curLoc, "Expected alias name after 'type'")
		return false
	}
	aliasName := identifierStr
	getNextToken() // eat alias name
	if curTok != '=' {
		logErrorExpr(curLoc, "Expected '=' in type alias declaration")
		return false
	}
	getNextToken() // eat '='
	aliased := parseTypeExpr()
	if aliased == nil {
		return false
	}
	typeAliases[aliasName] = aliased
	return true
}

// parseStructDecl handles a struct declaration block and registers it; the
// backend handle is resolved lazily on first use.
func parseStructDecl() bool {
	if curTok != tokStruct {
		return false
	}
	getNextToken() // eat 'struct'
	if curTok != tokIdentifier {
		logErrorExpr(curLoc, "Expected struct name after 'struct'")
		return false
	}
	structName := identifierStr
	structLoc := curLoc
	getNextToken() // eat name

	if _, ok := structDecls[structName]; ok {
		logErrorExpr(structLoc, "Struct '%s' is already defined", structName)
		return false
	}

	if curTok != ':' {
		logErrorExpr(curLoc, "Expected ':' after struct name")
		return false
	}
	getNextToken() // eat ':'

	if curTok != tokEOL {
		logErrorExpr(curLoc, "Expected newline after struct declaration header")
		return false
	}
	if getNextToken() != tokIndent {
		logErrorExpr(curLoc, "Expected indent for struct field list")
		return false
	}
	getNextToken() // eat indent

	decl := &StructDecl{Name: structName, FieldIndex: map[string]int{}, Loc: structLoc}
	for curTok != tokDedent && curTok != tokEOF {
		eatNewlines()
		if curTok == tokDedent || curTok == tokEOF {
			break
		}
		if curTok != tokIdentifier {
			logErrorExpr(curLoc, "Expected field name in struct declaration")
			return false
		}
		fieldName := identifierStr
		fieldLoc := curLoc
		getNextToken() // eat field name

		if _, dup := decl.FieldIndex[fieldName]; dup {
			logErrorExpr(fieldLoc, "Duplicate field '%s' in struct '%s'", fieldName, structName)
			return false
		}
		if curTok != ':' {
			logErrorExpr(curLoc, "Expected ':' after struct field name")
			return false
		}
		getNextToken() // eat ':'

		fieldTy := parseTypeExpr()
		if fieldTy == nil {
			return false
		}
		decl.FieldIndex[fieldName] = len(decl.Fields)
		decl.Fields = append(decl.Fields, StructField{Name: fieldName, Type: fieldTy})

		if curTok == tokEOL {
			getNextToken()
		}
	}

	if len(decl.Fields) == 0 {
		logErrorExpr(structLoc, "Struct '%s' must declare at least one field", structName)
		return false
	}
	if curTok != tokDedent {
		logErrorExpr(curLoc, "Expected dedent after struct field list")
		return false
	}
	getNextToken() // eat dedent

	structDecls[structName] = decl
	return true
}

func parseStatementList() ([]Stmt, bool) {
	var stmts []Stmt
	for curTok != tokDedent && curTok != tokEOF {
		eatNewlines()
		if curTok == tokDedent || curTok == tokEOF {
			break
		}
		s := ParseStmt()
		if s == nil {
			return nil, false
		}
		stmts = append(stmts, s)
		if curTok == ';' {
			getNextToken()
		}
	}
	return stmts, true
}

func parseBlockSuite() *BlockStmt {
	blockLoc := curLoc
	if curTok != tokEOL {
		logErrorExpr(curLoc, "Expected newline")
		return nil
	}
	if getNextToken() != tokIndent {
		logErrorExpr(curLoc, "Expected indent")
		return nil
	}
	getNextToken() // eat indent

	stmts, ok := parseStatementList()
	if !ok || len(stmts) == 0 {
		if ok {
			logErrorExpr(blockLoc, "Expected at least one statement in block")
		}
		return nil
	}
	getNextToken() // eat dedent
	return &BlockStmt{stmtBase: stmtBase{Loc: blockLoc}, Stmts: stmts}
}

func parseInlineSuite() *BlockStmt {
	blockLoc := curLoc
	s := ParseStmt()
	if s == nil {
		return nil
	}
	return &BlockStmt{stmtBase: stmtBase{Loc: blockLoc}, Stmts: []Stmt{s}}
}

func parseSuite() *BlockStmt {
	if curTok == tokEOL {
		return parseBlockSuite()
	}
	return parseInlineSuite()
}

func parseIfStmt() Stmt {
	ifLoc := curLoc
	if curTok != tokIf && curTok != tokElif {
		logErrorExpr(curLoc, "expected `if`/`elif`")
		return nil
	}
	getNextToken() // eat 'if' or 'elif'

	cond := ParseExpression()
	if cond == nil {
		return nil
	}
	if curTok != ':' {
		logErrorExpr(curLoc, "expected `:`")
		return nil
	}
	getNextToken() // eat ':'

	then := parseSuite()
	if then == nil {
		return nil
	}

	var elseSuite *BlockStmt
	if curTok == tokElif {
		elseIf := parseIfStmt()
		if elseIf == nil {
			return nil
		}
		elseSuite = &BlockStmt{stmtBase: stmtBase{Loc: ifLoc}, Stmts: []Stmt{elseIf}}
	} else if curTok == tokElse {
		getNextToken() // eat 'else'
		if curTok != ':' {
			logErrorExpr(curLoc, "expected `:`")
			return nil
		}
		getNextToken() // eat ':'
		elseSuite = parseSuite()
		if elseSuite == nil {
			return nil
		}
	}

	return &IfStmt{stmtBase: stmtBase{Loc: ifLoc}, Cond: cond, Then: then, Else: elseSuite}
}

func parseForStmt() Stmt {
	forLoc := curLoc
	getNextToken() // eat 'for'

	if curTok != tokIdentifier {
		logErrorExpr(curLoc, "Expected identifier after for")
		return nil
	}
	idName := identifierStr
	getNextToken() // eat identifier

	if curTok != tokIn {
		logErrorExpr(curLoc, "Expected `in` after identifier in for")
		return nil
	}
	getNextToken() // eat 'in'

	if curTok != tokRange {
		logErrorExpr(curLoc, "Expected `range` after identifier in for")
		return nil
	}
	getNextToken() // eat 'range'

	if curTok != '(' {
		logErrorExpr(curLoc, "Expected `(` after `range` in for")
		return nil
	}
	getNextToken() // eat '('

	start := ParseExpression()
	if start == nil {
		return nil
	}
	if curTok != ',' {
		logErrorExpr(curLoc, "expected `,` after range start")
		return nil
	}
	getNextToken() // eat ','

	end := ParseExpression()
	if end == nil {
		return nil
	}
	var step Expr
	if curTok == ',' {
		getNextToken() // eat ','
		step = ParseExpression()
		if step == nil {
			return nil
		}
	}

	if curTok != ')' {
		logErrorExpr(curLoc, "expected `)` after range operator")
		return nil
	}
	getNextToken() // eat ')'
	if curTok != ':' {
		logErrorExpr(curLoc, "expected `:` after range operator")
		return nil
	}
	getNextToken() // eat ':'

	body := parseSuite()
	if body == nil {
		return nil
	}
	return &ForStmt{stmtBase: stmtBase{Loc: forLoc}, Var: idName, Start: start, End: end, Step: step, Body: body}
}

func parseWhileStmt() Stmt {
	whileLoc := curLoc
	getNextToken() // eat 'while'

	cond := ParseExpression()
	if cond == nil {
		return nil
	}
	if curTok != ':' {
		logErrorExpr(curLoc, "expected `:` after while condition")
		return nil
	}
	getNextToken() // eat ':'

	body := parseSuite()
	if body == nil {
		return nil
	}
	return &WhileStmt{stmtBase: stmtBase{Loc: whileLoc}, Cond: cond, Body: body}
}

func parseDoWhileStmt() Stmt {
	doLoc := curLoc
	getNextToken() // eat 'do'

	if curTok != ':' {
		logErrorExpr(curLoc, "expected `:` after do")
		return nil
	}
	getNextToken() // eat ':'

	body := parseSuite()
	if body == nil {
		return nil
	}
	if curTok != tokWhile {
		logErrorExpr(curLoc, "expected `while` after do suite")
		return nil
	}
	getNextToken() // eat 'while'

	cond := ParseExpression()
	if cond == nil {
		return nil
	}
	return &DoWhileStmt{stmtBase: stmtBase{Loc: doLoc}, Body: body, Cond: cond}
}

func parseReturnStmt() Stmt {
	returnLoc := curLoc
	getNextToken() // eat 'return'
	var value Expr
	if curTok != tokEOL && curTok != tokDedent && curTok != tokEOF {
		value = ParseExpression()
		if value == nil {
			return nil
		}
	}
	return &ReturnStmt{stmtBase: stmtBase{Loc: returnLoc}, Value: value}
}

func parsePrintStmt() Stmt {
	printLoc := curLoc
	getNextToken() // eat 'print'
	if curTok != '(' {
		logErrorExpr(curLoc, "Expected '(' after print")
		return nil
	}
	getNextToken() // eat '('

	var args []Expr
	if curTok != ')' {
		for {
			arg := ParseExpression()
			if arg == nil {
				return nil
			}
			args = append(args, arg)

			if curTok == ')' {
				break
			}
			if curTok != ',' {
				logErrorExpr(curLoc, "Expected ')' or ',' in print argument list")
				return nil
			}
			getNextToken() // eat ','
			if curTok == ')' {
				logErrorExpr(curLoc, "Trailing comma is not allowed in print")
				return nil
			}
		}
	}
	getNextToken() // eat ')'
	return &PrintStmt{stmtBase: stmtBase{Loc: printLoc}, Args: args}
}

// parseIdentifierLeadingStmt disambiguates typed declarations, assignments,
// and plain expression statements that all start with an identifier chain.
func parseIdentifierLeadingStmt() Stmt {
	stmtLoc := curLoc
	lhs := parseIdentifierExpr()
	if lhs == nil {
		return nil
	}

	if curTok == ':' {
		name, ok := variableName(lhs)
		if !ok {
			logErrorExpr(curLoc, "Typed declaration requires an identifier")
			return nil
		}
		getNextToken() // eat ':'
		declType := parseTypeExpr()
		if declType == nil {
			return nil
		}
		var init Expr
		if curTok == '=' {
			getNextToken() // eat '='
			init = ParseExpression()
			if init == nil {
				return nil
			}
		}
		return &DeclStmt{stmtBase: stmtBase{Loc: stmtLoc}, Name: name, Type: declType, Init: init}
	}

	if curTok == '=' {
		getNextToken() // eat '='
		rhs := ParseExpression()
		if rhs == nil {
			return nil
		}
		return &AssignStmt{stmtBase: stmtBase{Loc: stmtLoc}, LHS: lhs, RHS: rhs}
	}

	expr := parseBinOpRHS(0, lhs)
	if expr == nil {
		return nil
	}
	return &ExprStmt{stmtBase: stmtBase{Loc: stmtLoc}, X: expr}
}

func parseExprStmt() Stmt {
	exprLoc := curLoc
	expr := ParseExpression()
	if expr == nil {
		return nil
	}
	return &ExprStmt{stmtBase: stmtBase{Loc: exprLoc}, X: expr}
}

func parseBreakStmt() Stmt {
	loc := curLoc
	getNextToken() // eat 'break'
	return &BreakStmt{stmtBase: stmtBase{Loc: loc}}
}

func parseContinueStmt() Stmt {
	loc := curLoc
	getNextToken() // eat 'continue'
	return &ContinueStmt{stmtBase: stmtBase{Loc: loc}}
}

// ParseStmt parses one statement.
func ParseStmt() Stmt {
	switch curTok {
	case tokIf:
		return parseIfStmt()
	case tokElif:
		logErrorExpr(curLoc, "Unexpected `elif` without matching `if`")
		return nil
	case tokElse:
		logErrorExpr(curLoc, "Unexpected `else` without matching `if`")
		return nil
	case tokFor:
		return parseForStmt()
	case tokWhile:
		return parseWhileStmt()
	case tokDo:
		return parseDoWhileStmt()
	case tokBreak:
		return parseBreakStmt()
	case tokContinue:
		return parseContinueStmt()
	case tokReturn:
		return parseReturnStmt()
	case tokPrint:
		return parsePrintStmt()
	case tokType:
		logErrorExpr(curLoc, "Type aliases are only allowed at top-level")
		return nil
	case tokStruct:
		logErrorExpr(curLoc, "Struct declarations are only allowed at top-level")
		return nil
	case tokIdentifier:
		return parseIdentifierLeadingStmt()
	default:
		return parseExprStmt()
	}
}

// parsePrototype parses id '(' (id ':' type (',' id ':' type)*)? ')' '->' type.
func parsePrototype() *Prototype {
	fnLoc := curLoc
	if curTok != tokIdentifier {
		logErrorExpr(curLoc, "Expected function name in prototype")
		return nil
	}
	fnName := identifierStr
	getNextToken()

	if curTok != '(' {
		logErrorExpr(curLoc, "Expected '(' in prototype")
		return nil
	}
	getNextToken() // eat '('

	var paramNames []string
	var paramTypes []*TypeExpr
	if curTok != ')' {
		for {
			if curTok != tokIdentifier {
				logErrorExpr(curLoc, "Expected parameter name")
				return nil
			}
			paramNames = append(paramNames, identifierStr)
			getNextToken() // eat parameter name
			if curTok != ':' {
				logErrorExpr(curLoc, "Expected ':' after parameter name")
				return nil
			}
			getNextToken() // eat ':'
			paramTy := parseTypeExpr()
			if paramTy == nil {
				return nil
			}
			paramTypes = append(paramTypes, paramTy)

			if curTok == ')' {
				break
			}
			if curTok != ',' {
				logErrorExpr(curLoc, "Expected ')' or ',' in parameter list")
				return nil
			}
			getNextToken() // eat ','
		}
	}

	if curTok != ')' {
		logErrorExpr(curLoc, "Expected ')' in prototype")
		return nil
	}
	getNextToken() // eat ')'
	if curTok != tokArrow {
		logErrorExpr(curLoc, "Expected '->' in prototype")
		return nil
	}
	getNextToken() // eat '->'
	retType := parseTypeExpr()
	if retType == nil {
		return nil
	}

	return &Prototype{Name: fnName, Params: paramNames, ParamTypes: paramTypes, RetType: retType, Loc: fnLoc}
}

// ParseDefinition parses 'def' prototype ':' suite.
func ParseDefinition() *Function {
	eatNewlines()

	if curTok != tokDef {
		logErrorExpr(curLoc, "expected 'def'")
		return nil
	}
	getNextToken() // eat 'def'

	proto := parsePrototype()
	if proto == nil {
		return nil
	}

	if curTok != ':' {
		logErrorExpr(curLoc, "Expected ':' in function definition")
		return nil
	}
	getNextToken() // eat ':'

	body := parseSuite()
	if body == nil {
		return nil
	}

	eatNewlines()
	for curTok == tokDedent {
		getNextToken()
	}

	return &Function{Proto: proto, Body: body}
}

// ParseExtern parses 'extern' 'def' prototype.
func ParseExtern() *Prototype {
	getNextToken() // eat 'extern'
	if curTok != tokDef {
		logErrorExpr(curLoc, "Expected 'def' after 'extern'")
		return nil
	}
	getNextToken() // eat 'def'
	return parsePrototype()
}

// ParseTopLevelStmt wraps a top-level statement in a zero-argument f64
// function named __anon_expr, the symbol the JIT driver looks up.
func ParseTopLevelStmt() *Function {
	fnLoc := curLoc
	s := ParseStmt()
	if s == nil {
		return nil
	}
	body := &BlockStmt{stmtBase: stmtBase{Loc: fnLoc}, Stmts: []Stmt{s}}
	proto := &Prototype{Name: anonExprName, RetType: builtinType("f64"), Loc: fnLoc}
	return &Function{Proto: proto, Body: body}
}
